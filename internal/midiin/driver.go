// Package midiin captures note events from a local MIDI input device and
// applies them to the local participant's note set.
package midiin

import (
	"errors"
	"strings"

	"github.com/chase3718/notelight/internal/notes"
)

// ErrDeviceUnavailable is reported when no input device exists or the
// chosen one cannot be opened.
var ErrDeviceUnavailable = errors.New("midi: device unavailable")

// EventType distinguishes note-on from note-off.
type EventType int

const (
	NoteOn EventType = iota
	NoteOff
)

// Event is one note message from a device.
type Event struct {
	Note     notes.Note
	Velocity int
	Type     EventType
}

// Driver enumerates and opens input devices.
type Driver interface {
	ListDevices() ([]string, error)
	Open(name string) (Stream, error)
}

// Stream is an open device. Poll returns the events received since the
// previous call without blocking. A non-nil error means the device is
// gone; events returned alongside it are still valid.
type Stream interface {
	Poll() ([]Event, error)
	Close() error
}

// DefaultExcluded are virtual or system ports never worth capturing from.
var DefaultExcluded = []string{"Midi Through", "Through Port", "Dummy"}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func matchesAny(name string, patterns []string) bool {
	for _, pat := range patterns {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}
