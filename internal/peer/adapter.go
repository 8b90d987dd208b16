package peer

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chase3718/notelight/internal/clock"
	"github.com/chase3718/notelight/internal/link"
	"github.com/chase3718/notelight/internal/notes"
)

// Remote is the part of the aggregator the adapter writes to.
type Remote interface {
	LocalID() notes.ParticipantID
	ReplaceRemote(notes.ParticipantID, []notes.Note)
}

// Options configure an Adapter.
type Options struct {
	Namespace string
	// Instrument is the local participant's kind; it names the publish topic.
	Instrument string
	// Kinds are subscribed to; DefaultKinds when empty.
	Kinds  []string
	Clock  clock.Clock
	Logger *slog.Logger
}

// Adapter owns the bus session: it feeds inbound note sets into the
// aggregator and publishes the local set through its Publisher.
type Adapter struct {
	dial   Dialer
	remote Remote
	opts   Options
	topics Topics
	log    *slog.Logger
	status *link.Status
	pub    *Publisher

	opMu sync.Mutex

	mu  sync.Mutex
	bus Bus
	gen int
}

// New creates a disconnected adapter.
func New(dial Dialer, remote Remote, opts Options) *Adapter {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if len(opts.Kinds) == 0 {
		opts.Kinds = DefaultKinds
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	topics := Topics{Namespace: opts.Namespace}
	return &Adapter{
		dial:   dial,
		remote: remote,
		opts:   opts,
		topics: topics,
		log:    opts.Logger,
		status: link.NewStatus("mqtt", opts.Clock, opts.Logger),
		pub:    NewPublisher(topics, remote.LocalID(), opts.Instrument, opts.Clock, opts.Logger),
	}
}

// Status exposes the adapter's link state.
func (a *Adapter) Status() *link.Status { return a.status }

// Publisher returns the local publisher. It is detached while disconnected.
func (a *Adapter) Publisher() *Publisher { return a.pub }

// Connect dials the broker, subscribes and announces presence.
func (a *Adapter) Connect() error {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	if err := a.status.Begin(a.opts.Namespace); err != nil {
		return err
	}
	a.mu.Lock()
	a.gen++
	gen := a.gen
	a.mu.Unlock()

	bus, err := a.dial(Session{
		ClientID: string(a.remote.LocalID()),
		Will:     a.pub.Will(),
		OnLost:   func(err error) { a.lost(gen, err) },
	})
	if err != nil {
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		a.status.Fail("connect", err)
		return err
	}

	a.mu.Lock()
	a.bus = bus
	a.mu.Unlock()

	for _, kind := range a.opts.Kinds {
		if err = bus.Subscribe(a.topics.Notes(kind), a.handleNotes); err != nil {
			break
		}
	}
	if err == nil {
		err = bus.Subscribe(a.topics.AllStatus(), a.handleStatus)
	}
	if err != nil {
		a.mu.Lock()
		a.bus = nil
		a.mu.Unlock()
		_ = bus.Close()
		a.status.Fail("subscribe", err)
		return err
	}

	a.pub.Attach(bus)
	a.pub.Announce(true)
	a.status.Succeed(fmt.Sprintf("%s as %s", a.opts.Namespace, a.remote.LocalID()))
	return nil
}

// lost handles a broker-side disconnect.
func (a *Adapter) lost(gen int, err error) {
	a.mu.Lock()
	if a.bus == nil || a.gen != gen {
		a.mu.Unlock()
		return
	}
	a.bus = nil
	a.mu.Unlock()

	a.pub.Attach(nil)
	a.status.Drop("connection lost", fmt.Errorf("%w: %w", ErrTransport, err))
}

// Close announces offline and disconnects. Safe to call when not connected.
func (a *Adapter) Close() error {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	bus := a.bus
	a.bus = nil
	a.mu.Unlock()
	if bus == nil {
		return nil
	}

	a.pub.Announce(false)
	a.pub.Attach(nil)
	err := bus.Close()
	a.status.Drop("closed", nil)
	if err != nil {
		return fmt.Errorf("mqtt: close: %w", err)
	}
	return nil
}

func (a *Adapter) handleNotes(topic string, payload []byte) {
	id, ns, err := DecodeNotes(payload)
	if err != nil {
		a.log.Debug("mqtt: dropping message", "topic", topic, "err", err)
		return
	}
	if id == a.remote.LocalID() {
		return
	}
	a.remote.ReplaceRemote(id, ns)
}

func (a *Adapter) handleStatus(topic string, payload []byte) {
	// Retained status topics can be cleared with an empty payload.
	if len(payload) == 0 {
		return
	}
	msg, err := DecodeStatus(payload)
	if err != nil {
		a.log.Debug("mqtt: dropping status", "topic", topic, "err", err)
		return
	}
	id := notes.ParticipantID(msg.ClientID)
	if id == a.remote.LocalID() {
		return
	}
	a.log.Info("mqtt: peer status", "status", msg.Status, "participant", id, "kind", kindFromStatusTopic(topic))
	if msg.Status == StatusOffline {
		a.remote.ReplaceRemote(id, nil)
	}
}

// kindFromStatusTopic extracts <kind> from <ns>/status/<kind>/<id>.
func kindFromStatusTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}
