// Package render drives the pipeline: once per tick it reads the note
// state, evaluates the color mapper over the topology and hands the frame
// to the LED sinks.
package render

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chase3718/notelight/internal/clock"
	"github.com/chase3718/notelight/internal/colormap"
	"github.com/chase3718/notelight/internal/notes"
	"github.com/chase3718/notelight/internal/topology"
)

// DefaultRate is the reference tick rate in Hz.
const DefaultRate = 30

// Source supplies note state.
type Source interface {
	Snapshot() notes.Snapshot
}

// Sink receives each rendered frame.
type Sink interface {
	Send(frame []colormap.RGB) error
}

// Frame is one rendered tick, kept for local display.
type Frame struct {
	At       time.Time      `json:"at"`
	Kind     topology.Kind  `json:"topology"`
	Strings  int            `json:"strings"`
	Frets    int            `json:"frets"`
	Sounding string         `json:"sounding"`
	Pixels   []colormap.RGB `json:"pixels"`
}

// LoopOptions tune a Loop.
type LoopOptions struct {
	// Rate in ticks per second; DefaultRate when zero.
	Rate   int
	Clock  clock.Clock
	Logger *slog.Logger
}

// Loop is the render driver. It only reads the note state; sends are
// non-blocking on the sink side and their errors never stop the loop.
type Loop struct {
	src      Source
	controls *Controls
	sink     Sink
	clock    clock.Clock
	interval time.Duration
	log      *slog.Logger

	mu          sync.Mutex
	last        Frame
	lastPlaying time.Time
	// fading is the highlight of the last playing tick, shown without
	// Playing until the fade window since lastPlaying runs out.
	fading colormap.Highlight

	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewLoop composes a loop. sink may be nil for display-only use.
func NewLoop(src Source, controls *Controls, sink Sink, opts LoopOptions) *Loop {
	if opts.Rate <= 0 {
		opts.Rate = DefaultRate
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loop{
		src:      src,
		controls: controls,
		sink:     sink,
		clock:    opts.Clock,
		interval: time.Second / time.Duration(opts.Rate),
		log:      opts.Logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Interval is the time between ticks.
func (l *Loop) Interval() time.Duration { return l.interval }

// Tick renders and sends one frame for now.
func (l *Loop) Tick(now time.Time) Frame {
	player := l.controls.Player()
	if player.Advance(now) {
		st := player.State()
		l.log.Debug("render: chord advanced", "progression", st.Progression, "chord", st.Chord)
	}
	view := l.controls.View()
	hl := player.Highlight(view.Table)
	snap := l.src.Snapshot()

	l.mu.Lock()
	switch {
	case hl.Playing:
		l.lastPlaying = now
		l.fading = colormap.Highlight{Chord: hl.Chord, Key: hl.Key}
	case now.Sub(l.lastPlaying) < view.Mapper.Policy.FadeWindow:
		hl = l.fading
	}
	lastPlaying := l.lastPlaying
	l.mu.Unlock()

	in := colormap.InputFrom(snap, hl, now, lastPlaying)
	f := Frame{
		At:       now,
		Kind:     view.Table.Kind(),
		Strings:  view.Table.Strings(),
		Frets:    view.Table.Frets(),
		Sounding: in.Sounding.String(),
		Pixels:   view.Mapper.Frame(view.Table, in),
	}

	l.mu.Lock()
	l.last = f
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.Send(f.Pixels); err != nil {
			l.log.Debug("render: send failed", "err", err)
		}
	}
	return f
}

// LastFrame returns the most recently rendered frame.
func (l *Loop) LastFrame() Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Run ticks until Close is called.
func (l *Loop) Run() {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	defer close(l.done)

	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()
	l.log.Info("render: loop started", "interval", l.interval)
	for {
		select {
		case <-l.stop:
			l.log.Info("render: loop stopped")
			return
		case now := <-ticker.C:
			l.Tick(now)
		}
	}
}

// Close stops Run and waits for the current tick to finish.
func (l *Loop) Close() error {
	l.closeOnce.Do(func() {
		close(l.stop)
		if l.started.Load() {
			<-l.done
		}
	})
	return nil
}
