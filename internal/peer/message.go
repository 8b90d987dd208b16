// Package peer exchanges note sets with other installations over an MQTT
// bus: inbound messages replace a remote participant's set wholesale, and
// local changes are published for everyone else.
package peer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chase3718/notelight/internal/notes"
)

var (
	// ErrTransport covers an unreachable broker and failed sends.
	ErrTransport = errors.New("peer: transport error")
	// ErrMalformedPeerMessage marks an inbound payload that violates the
	// message schema. Such messages are dropped.
	ErrMalformedPeerMessage = errors.New("peer: malformed message")
)

// DefaultNamespace prefixes every topic.
const DefaultNamespace = "centaurus/music"

// DefaultKinds are the instrument kinds subscribed to when none are configured.
var DefaultKinds = []string{"piano", "drums", "bass", "guitar"}

// Topics builds topic names under one namespace.
type Topics struct {
	Namespace string
}

// Notes is the notes channel for an instrument kind.
func (t Topics) Notes(kind string) string {
	return t.Namespace + "/notes/" + kind
}

// Status is the retained status topic of one participant.
func (t Topics) Status(kind string, id notes.ParticipantID) string {
	return t.Namespace + "/status/" + kind + "/" + string(id)
}

// AllStatus matches every participant's status topic.
func (t Topics) AllStatus() string {
	return t.Namespace + "/status/+/+"
}

// NotesMessage is the payload on a notes topic.
type NotesMessage struct {
	ClientID   string  `json:"client_id"`
	Instrument string  `json:"instrument"`
	Notes      []int   `json:"notes"`
	Timestamp  float64 `json:"timestamp,omitempty"`
}

// Status values carried by StatusMessage.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// StatusMessage is the retained payload on a status topic.
type StatusMessage struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
}

// DecodeNotes parses and validates a notes payload.
func DecodeNotes(payload []byte) (notes.ParticipantID, []notes.Note, error) {
	var msg NotesMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrMalformedPeerMessage, err)
	}
	if msg.ClientID == "" {
		return "", nil, fmt.Errorf("%w: empty client_id", ErrMalformedPeerMessage)
	}
	if msg.Notes == nil {
		return "", nil, fmt.Errorf("%w: missing notes", ErrMalformedPeerMessage)
	}
	ns := make([]notes.Note, 0, len(msg.Notes))
	for _, v := range msg.Notes {
		n := notes.Note(v)
		if !n.Valid() {
			return "", nil, fmt.Errorf("%w: note %d out of range", ErrMalformedPeerMessage, v)
		}
		ns = append(ns, n)
	}
	return notes.ParticipantID(msg.ClientID), ns, nil
}

// DecodeStatus parses and validates a status payload.
func DecodeStatus(payload []byte) (StatusMessage, error) {
	var msg StatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrMalformedPeerMessage, err)
	}
	if msg.ClientID == "" {
		return msg, fmt.Errorf("%w: empty client_id", ErrMalformedPeerMessage)
	}
	if msg.Status != StatusOnline && msg.Status != StatusOffline {
		return msg, fmt.Errorf("%w: unknown status %q", ErrMalformedPeerMessage, msg.Status)
	}
	return msg, nil
}

func encodeStatus(id notes.ParticipantID, online bool) []byte {
	st := StatusOffline
	if online {
		st = StatusOnline
	}
	b, _ := json.Marshal(StatusMessage{Status: st, ClientID: string(id)})
	return b
}
