package peer

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/chase3718/notelight/internal/clock"
	"github.com/chase3718/notelight/internal/notes"
)

// Publisher sends the local participant's notes and presence to the bus.
// Sends are fire-and-forget; with no bus attached they are skipped.
type Publisher struct {
	topics     Topics
	id         notes.ParticipantID
	instrument string
	clock      clock.Clock
	log        *slog.Logger

	mu      sync.Mutex
	bus     Bus
	failing bool
}

// NewPublisher creates a detached publisher.
func NewPublisher(topics Topics, id notes.ParticipantID, instrument string, c clock.Clock, log *slog.Logger) *Publisher {
	if c == nil {
		c = clock.Real()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{topics: topics, id: id, instrument: instrument, clock: c, log: log}
}

// Attach sets the bus to publish on; nil detaches.
func (p *Publisher) Attach(b Bus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bus = b
}

// Will is the offline status registered with the broker at connect.
func (p *Publisher) Will() *Will {
	return &Will{Topic: p.topics.Status(p.instrument, p.id), Payload: encodeStatus(p.id, false)}
}

// PublishNotes sends the complete local set.
func (p *Publisher) PublishNotes(ns []notes.Note) {
	vals := make([]int, len(ns))
	for i, n := range ns {
		vals[i] = int(n)
	}
	now := p.clock.Now()
	payload, err := json.Marshal(NotesMessage{
		ClientID:   string(p.id),
		Instrument: p.instrument,
		Notes:      vals,
		Timestamp:  float64(now.UnixNano()) / 1e9,
	})
	if err != nil {
		p.log.Error("mqtt: encode notes", "err", err)
		return
	}
	p.send(p.topics.Notes(p.instrument), 0, false, payload)
}

// Announce sends the retained online or offline status.
func (p *Publisher) Announce(online bool) {
	p.send(p.topics.Status(p.instrument, p.id), 1, true, encodeStatus(p.id, online))
}

func (p *Publisher) send(topic string, qos byte, retained bool, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bus == nil {
		p.log.Debug("mqtt: not connected, publish skipped", "topic", topic)
		return
	}
	err := p.bus.Publish(topic, qos, retained, payload)
	switch {
	case err != nil && !p.failing:
		p.failing = true
		p.log.Warn("mqtt: publish failed", "topic", topic, "err", err)
	case err != nil:
		p.log.Debug("mqtt: publish still failing", "topic", topic, "err", err)
	case p.failing:
		p.failing = false
		p.log.Info("mqtt: publish recovered", "topic", topic)
	}
}
