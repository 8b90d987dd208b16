package render

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chase3718/notelight/internal/colormap"
	"github.com/chase3718/notelight/internal/progression"
	"github.com/chase3718/notelight/internal/topology"
)

// ErrNotFretted is returned when retuning a keyboard topology.
var ErrNotFretted = errors.New("render: topology has no tuning")

// Controls are the operator-adjustable rendering settings. Changing them
// never touches note state. Safe for concurrent use.
type Controls struct {
	player *progression.Player

	mu     sync.RWMutex
	scheme colormap.Scheme
	mode   colormap.Mode
	policy colormap.Policy
	tuning string
	table  *topology.Table
}

// Settings seed a Controls.
type Settings struct {
	Scheme colormap.Scheme
	Mode   colormap.Mode
	Policy colormap.Policy
	// Tuning names the table's tuning; empty for keyboards.
	Tuning string
}

// NewControls wraps an initial table. player may be nil.
func NewControls(table *topology.Table, s Settings, player *progression.Player) *Controls {
	if s.Scheme == "" {
		s.Scheme = colormap.Chromatic
	}
	if s.Mode == "" {
		s.Mode = colormap.Default
	}
	if s.Policy == (colormap.Policy{}) {
		s.Policy = colormap.DefaultPolicy()
	}
	if player == nil {
		player = progression.NewPlayer(nil, 0)
	}
	return &Controls{
		player: player,
		scheme: s.Scheme,
		mode:   s.Mode,
		policy: s.Policy,
		tuning: s.Tuning,
		table:  table,
	}
}

// View is a consistent read of the controls for one frame.
type View struct {
	Mapper colormap.Mapper
	Table  *topology.Table
}

// View returns the mapper and table to render with.
func (c *Controls) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return View{
		Mapper: colormap.Mapper{Scheme: c.scheme, Mode: c.mode, Policy: c.policy},
		Table:  c.table,
	}
}

// Player returns the progression player.
func (c *Controls) Player() *progression.Player { return c.player }

// State is the controls as reported over the status API.
type State struct {
	Scheme      colormap.Scheme   `json:"scheme"`
	Mode        colormap.Mode     `json:"mode"`
	Tuning      string            `json:"tuning,omitempty"`
	Topology    topology.Kind     `json:"topology"`
	Strings     int               `json:"strings"`
	Frets       int               `json:"frets"`
	Progression progression.State `json:"progression"`
}

// State snapshots the controls.
func (c *Controls) State() State {
	c.mu.RLock()
	st := State{
		Scheme:   c.scheme,
		Mode:     c.mode,
		Tuning:   c.tuning,
		Topology: c.table.Kind(),
		Strings:  c.table.Strings(),
		Frets:    c.table.Frets(),
	}
	c.mu.RUnlock()
	st.Progression = c.player.State()
	return st
}

// CycleScheme switches to the other color scheme.
func (c *Controls) CycleScheme() colormap.Scheme {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheme = c.scheme.Next()
	return c.scheme
}

// SetMode selects the render mode.
func (c *Controls) SetMode(m colormap.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

// SetTuning rebuilds the table for a named tuning, keeping the fret count.
// The old table is replaced whole.
func (c *Controls) SetTuning(name string) error {
	tuning, err := topology.Tuning(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.table.Kind() != topology.Fretted {
		return ErrNotFretted
	}
	if len(tuning) != c.table.Strings() {
		return fmt.Errorf("render: tuning %q has %d strings, layout has %d", name, len(tuning), c.table.Strings())
	}
	table, err := topology.Build(tuning, c.table.Frets())
	if err != nil {
		return err
	}
	c.table = table
	c.tuning = name
	return nil
}

// CycleTuning moves to the next named tuning.
func (c *Controls) CycleTuning() (string, error) {
	c.mu.RLock()
	next := topology.NextTuning(c.tuning)
	c.mu.RUnlock()
	if err := c.SetTuning(next); err != nil {
		return "", err
	}
	return next, nil
}

// NextProgression selects the next chord progression.
func (c *Controls) NextProgression() progression.State {
	return c.player.NextProgression()
}

// TogglePlay starts or stops progression playback.
func (c *Controls) TogglePlay(now time.Time) progression.State {
	return c.player.Toggle(now)
}
