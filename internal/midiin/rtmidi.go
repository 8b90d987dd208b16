package midiin

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/chase3718/notelight/internal/notes"
)

// RtMIDI is the Driver backed by gomidi's rtmidi driver.
type RtMIDI struct {
	drv      *rtmididrv.Driver
	excluded []string
	log      *slog.Logger
}

// NewRtMIDI initialises the rtmidi driver. Ports whose names contain any
// of excluded are hidden. Call Close when done.
func NewRtMIDI(excluded []string, log *slog.Logger) (*RtMIDI, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &RtMIDI{drv: drv, excluded: excluded, log: log}, nil
}

// Close shuts the driver down.
func (r *RtMIDI) Close() error {
	return r.drv.Close()
}

// ListDevices returns input port names, minus excluded ones.
func (r *RtMIDI) ListDevices() ([]string, error) {
	ins, err := r.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("midi: list inputs: %w", err)
	}
	var names []string
	for _, in := range ins {
		name := in.String()
		if matchesAny(name, r.excluded) {
			r.log.Debug("midi: input excluded", "device", name)
			continue
		}
		names = append(names, name)
	}
	r.log.Debug("midi: inputs found", "count", len(names), "devices", strings.Join(names, ", "))
	return names, nil
}

// Open starts listening on the named input.
func (r *RtMIDI) Open(name string) (Stream, error) {
	ins, err := r.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("midi: list inputs: %w", err)
	}
	var found drivers.In
	for _, in := range ins {
		if in.String() == name {
			found = in
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("input %q not found", name)
	}
	if err := found.Open(); err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}

	st := &rtStream{in: found}
	stop, err := midi.ListenTo(found, st.receive, midi.HandleError(func(listenErr error) {
		r.log.Warn("midi: listener error", "device", name, "err", listenErr)
		st.fail(listenErr)
	}))
	if err != nil {
		_ = found.Close()
		return nil, fmt.Errorf("listen %q: %w", name, err)
	}
	st.stop = stop
	return st, nil
}

// rtStream buffers callback-delivered messages until the adapter polls.
type rtStream struct {
	in   drivers.In
	stop func()

	mu      sync.Mutex
	pending []Event
	err     error
}

func (s *rtStream) receive(msg midi.Message, _ int32) {
	var ch, key, vel uint8
	var ev Event
	switch {
	case msg.GetNoteOn(&ch, &key, &vel):
		ev = Event{Note: notes.Note(key), Velocity: int(vel), Type: NoteOn}
	case msg.GetNoteOff(&ch, &key, &vel):
		ev = Event{Note: notes.Note(key), Velocity: int(vel), Type: NoteOff}
	default:
		return
	}
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()
}

func (s *rtStream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *rtStream) Poll() ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.pending
	s.pending = nil
	return events, s.err
}

func (s *rtStream) Close() error {
	if s.stop != nil {
		s.stop()
	}
	return s.in.Close()
}
