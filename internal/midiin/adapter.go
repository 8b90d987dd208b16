package midiin

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chase3718/notelight/internal/clock"
	"github.com/chase3718/notelight/internal/link"
	"github.com/chase3718/notelight/internal/notes"
)

// DefaultPollInterval bounds the sleep between polls of an open stream.
const DefaultPollInterval = time.Millisecond

// LocalNotes is the part of the aggregator the adapter mutates.
type LocalNotes interface {
	AddLocal(notes.Note) bool
	RemoveLocal(notes.Note) bool
	ClearLocal() bool
}

// Options tune an Adapter.
type Options struct {
	// Preferred name patterns, tried in order when nothing is open.
	Preferred []string
	// LastUsed is the device opened in a previous session, tried first.
	LastUsed     string
	PollInterval time.Duration
	Clock        clock.Clock
	Logger       *slog.Logger
	// OnConnected is called with the device name after each successful open.
	OnConnected func(name string)
}

// Adapter owns at most one open input stream and feeds its note events
// into the local note set.
type Adapter struct {
	driver Driver
	sink   LocalNotes
	opts   Options
	log    *slog.Logger
	clock  clock.Clock
	status *link.Status

	// serialises Connect/Next/Close
	opMu sync.Mutex

	mu       sync.Mutex
	sess     *session
	lastUsed string
	cursor   int
}

type session struct {
	name   string
	stream Stream
	stop   chan struct{}
	done   chan struct{}
}

// New creates a disconnected adapter.
func New(driver Driver, sink LocalNotes, opts Options) *Adapter {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Adapter{
		driver:   driver,
		sink:     sink,
		opts:     opts,
		log:      opts.Logger,
		clock:    opts.Clock,
		status:   link.NewStatus("midi", opts.Clock, opts.Logger),
		lastUsed: opts.LastUsed,
		cursor:   -1,
	}
}

// Status exposes the adapter's link state.
func (a *Adapter) Status() *link.Status { return a.status }

// Device returns the name of the open device, or "".
func (a *Adapter) Device() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil {
		return ""
	}
	return a.sess.name
}

// Connect opens the named device, closing any current one first.
func (a *Adapter) Connect(name string) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	a.closeSession(nil)
	return a.open(name)
}

// Next selects and opens a device from the enumerated list. With nothing
// open, the last used device and preferred patterns win; otherwise it
// cycles to the device after the current one.
func (a *Adapter) Next() error {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	devices, err := a.driver.ListDevices()
	if err == nil && len(devices) == 0 {
		err = ErrDeviceUnavailable
	} else if err != nil {
		err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if err != nil {
		if a.status.State() == link.Disconnected && a.status.Begin("scan") == nil {
			a.status.Fail("no input devices", err)
		}
		return err
	}

	name := a.pick(devices)
	a.closeSession(nil)
	return a.open(name)
}

func (a *Adapter) pick(devices []string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	current := ""
	if a.sess != nil {
		current = a.sess.name
	}
	if current == "" {
		if i := indexOf(devices, a.lastUsed); i >= 0 {
			a.cursor = i
			return devices[i]
		}
		for _, pat := range a.opts.Preferred {
			for i, name := range devices {
				if containsCI(name, pat) {
					a.cursor = i
					return name
				}
			}
		}
	}
	if i := indexOf(devices, current); i >= 0 {
		a.cursor = i
	}
	a.cursor = (a.cursor + 1) % len(devices)
	return devices[a.cursor]
}

func indexOf(list []string, s string) int {
	if s == "" {
		return -1
	}
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

// open runs with opMu held and no session active.
func (a *Adapter) open(name string) error {
	if err := a.status.Begin(name); err != nil {
		return err
	}
	st, err := a.driver.Open(name)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		a.status.Fail(name, err)
		return err
	}

	sess := &session{name: name, stream: st, stop: make(chan struct{}), done: make(chan struct{})}
	a.mu.Lock()
	a.sess = sess
	a.lastUsed = name
	a.mu.Unlock()

	a.status.Succeed(name)
	a.log.Info("midi: connected", "device", name)
	if a.opts.OnConnected != nil {
		a.opts.OnConnected(name)
	}
	go a.poll(sess)
	return nil
}

func (a *Adapter) poll(sess *session) {
	defer close(sess.done)
	for {
		select {
		case <-sess.stop:
			return
		default:
		}
		events, err := sess.stream.Poll()
		for _, ev := range events {
			a.apply(ev)
		}
		if err != nil {
			a.lost(sess, err)
			return
		}
		a.clock.Sleep(a.opts.PollInterval)
	}
}

func (a *Adapter) apply(ev Event) {
	if !ev.Note.Valid() {
		a.log.Debug("midi: note out of range", "note", int(ev.Note))
		return
	}
	if ev.Type == NoteOn && ev.Velocity > 0 {
		if a.sink.AddLocal(ev.Note) {
			a.log.Debug("midi: note on", "note", ev.Note, "velocity", ev.Velocity)
		}
		return
	}
	if a.sink.RemoveLocal(ev.Note) {
		a.log.Debug("midi: note off", "note", ev.Note)
	}
}

// lost handles a transport-level disconnect from inside the poll goroutine.
func (a *Adapter) lost(sess *session, err error) {
	a.mu.Lock()
	if a.sess != sess {
		a.mu.Unlock()
		return
	}
	a.sess = nil
	a.mu.Unlock()

	if cerr := sess.stream.Close(); cerr != nil {
		a.log.Debug("midi: close after loss", "device", sess.name, "err", cerr)
	}
	a.log.Warn("midi: device disappeared", "device", sess.name, "err", err)
	a.status.Drop(sess.name, err)
	a.releaseAll()
}

// closeSession stops and closes the current stream, if any.
func (a *Adapter) closeSession(reason error) error {
	a.mu.Lock()
	sess := a.sess
	a.sess = nil
	a.mu.Unlock()
	if sess == nil {
		return nil
	}

	close(sess.stop)
	<-sess.done
	err := sess.stream.Close()
	a.status.Drop(sess.name, reason)
	a.releaseAll()
	return err
}

// releaseAll drops every held note so nothing stays lit after the device
// that pressed it is gone.
func (a *Adapter) releaseAll() {
	if a.sink.ClearLocal() {
		a.log.Info("midi: released held notes")
	}
}

// Close closes the open device. Safe to call more than once.
func (a *Adapter) Close() error {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	if err := a.closeSession(nil); err != nil {
		return fmt.Errorf("midi: close: %w", err)
	}
	return nil
}
