// Package progression supplies the chord and key highlighted on the
// display: a list of chord progressions, a cursor into them, and timed
// auto-advance while a progression is playing.
package progression

import (
	"fmt"
	"sync"
	"time"

	"github.com/chase3718/notelight/internal/colormap"
	"github.com/chase3718/notelight/internal/notes"
	"github.com/chase3718/notelight/internal/topology"
)

// Fingering is one fretted note of a chord shape. String is 1-based from
// the highest string, as chord charts number them.
type Fingering struct {
	String int `yaml:"string" json:"string"`
	Fret   int `yaml:"fret" json:"fret"`
}

// Chord is a named chord given either as a fretted shape or as explicit
// pitch classes (for keyboards).
type Chord struct {
	Name         string      `yaml:"name" json:"name"`
	Shape        []Fingering `yaml:"shape,omitempty" json:"shape,omitempty"`
	PitchClasses []int       `yaml:"pitch_classes,omitempty" json:"pitch_classes,omitempty"`
}

// Pitches resolves the chord against table. Fingerings outside the table
// are skipped.
func (c Chord) Pitches(table *topology.Table) notes.PitchSet {
	ps := notes.PitchSetOf(c.PitchClasses...)
	for _, f := range c.Shape {
		row := table.Strings() - f.String
		if pc, ok := table.PitchClass(topology.Position{String: row, Fret: f.Fret}); ok {
			ps = ps.With(pc)
		}
	}
	return ps
}

// Progression is an ordered list of chords.
type Progression struct {
	Name   string  `yaml:"name" json:"name"`
	Chords []Chord `yaml:"chords" json:"chords"`
}

// Key is the union of every chord's pitch classes.
func (p Progression) Key(table *topology.Table) notes.PitchSet {
	var ps notes.PitchSet
	for _, c := range p.Chords {
		ps = ps.Union(c.Pitches(table))
	}
	return ps
}

func shape(pairs ...[2]int) []Fingering {
	out := make([]Fingering, len(pairs))
	for i, p := range pairs {
		out[i] = Fingering{String: p[0], Fret: p[1]}
	}
	return out
}

// Builtin returns the stock progressions.
func Builtin() []Progression {
	return []Progression{
		{Name: "Jazz ii-V-I in C", Chords: []Chord{
			{Name: "Dm7", Shape: shape([2]int{1, 1}, [2]int{2, 1}, [2]int{3, 2}, [2]int{4, 3})},
			{Name: "G7", Shape: shape([2]int{1, 1}, [2]int{2, 0}, [2]int{3, 0}, [2]int{4, 0}, [2]int{5, 2})},
			{Name: "Cmaj7", Shape: shape([2]int{1, 0}, [2]int{2, 3}, [2]int{3, 2}, [2]int{4, 0}, [2]int{5, 0})},
		}},
		{Name: "Blues in A", Chords: []Chord{
			{Name: "A7", Shape: shape([2]int{1, 0}, [2]int{2, 2}, [2]int{3, 0}, [2]int{4, 2}, [2]int{5, 0})},
			{Name: "D7", Shape: shape([2]int{1, 2}, [2]int{2, 1}, [2]int{3, 2}, [2]int{4, 0}, [2]int{5, 2})},
			{Name: "E7", Shape: shape([2]int{1, 0}, [2]int{2, 0}, [2]int{3, 1}, [2]int{4, 0}, [2]int{5, 2}, [2]int{6, 0})},
		}},
		{Name: "Pop I-V-vi-IV in G", Chords: []Chord{
			{Name: "G", Shape: shape([2]int{1, 3}, [2]int{2, 0}, [2]int{3, 0}, [2]int{4, 0}, [2]int{5, 2}, [2]int{6, 3})},
			{Name: "D", Shape: shape([2]int{1, 2}, [2]int{2, 3}, [2]int{3, 2}, [2]int{4, 0}, [2]int{5, 0})},
			{Name: "Em", Shape: shape([2]int{1, 0}, [2]int{2, 0}, [2]int{3, 0}, [2]int{4, 2}, [2]int{5, 2})},
			{Name: "C", Shape: shape([2]int{1, 0}, [2]int{2, 1}, [2]int{3, 0}, [2]int{4, 2}, [2]int{5, 3})},
		}},
	}
}

// DefaultAdvance is how long each chord holds while a progression plays.
const DefaultAdvance = 5 * time.Second

// Player is a cursor over a list of progressions. Safe for concurrent use.
type Player struct {
	mu           sync.Mutex
	progressions []Progression
	current      int
	chord        int
	playing      bool
	advance      time.Duration
	lastChange   time.Time
}

// NewPlayer creates a stopped player at the first chord of the first
// progression. An empty list is allowed and highlights nothing.
func NewPlayer(ps []Progression, advance time.Duration) *Player {
	if advance <= 0 {
		advance = DefaultAdvance
	}
	return &Player{progressions: ps, advance: advance}
}

// State describes the player for status reporting.
type State struct {
	Progression string `json:"progression"`
	Chord       string `json:"chord"`
	Playing     bool   `json:"playing"`
}

// State returns the current position.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	prog, chord, ok := p.currentLocked()
	if !ok {
		return State{}
	}
	return State{Progression: prog.Name, Chord: chord.Name, Playing: p.playing}
}

func (p *Player) currentLocked() (Progression, Chord, bool) {
	if len(p.progressions) == 0 {
		return Progression{}, Chord{}, false
	}
	prog := p.progressions[p.current]
	if len(prog.Chords) == 0 {
		return prog, Chord{}, false
	}
	return prog, prog.Chords[p.chord], true
}

// NextProgression moves to the first chord of the next progression.
func (p *Player) NextProgression() State {
	p.mu.Lock()
	if len(p.progressions) > 0 {
		p.current = (p.current + 1) % len(p.progressions)
		p.chord = 0
	}
	p.mu.Unlock()
	return p.State()
}

// Toggle starts or stops playback. Starting resets the chord timer.
func (p *Player) Toggle(now time.Time) State {
	p.mu.Lock()
	p.playing = !p.playing
	p.lastChange = now
	p.mu.Unlock()
	return p.State()
}

// Advance steps to the next chord when playing and the hold time has
// elapsed. Reports whether the chord changed.
func (p *Player) Advance(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing || now.Sub(p.lastChange) < p.advance {
		return false
	}
	prog, _, ok := p.currentLocked()
	if !ok {
		return false
	}
	p.chord = (p.chord + 1) % len(prog.Chords)
	p.lastChange = now
	return true
}

// Highlight resolves the current chord and its progression's key against
// table while playing. A stopped player highlights nothing.
func (p *Player) Highlight(table *topology.Table) colormap.Highlight {
	p.mu.Lock()
	defer p.mu.Unlock()
	prog, chord, ok := p.currentLocked()
	if !ok || !p.playing {
		return colormap.Highlight{}
	}
	return colormap.Highlight{
		Chord:   chord.Pitches(table),
		Key:     prog.Key(table),
		Playing: true,
	}
}

// Validate checks that every progression has a name and chords.
func Validate(ps []Progression) error {
	for i, prog := range ps {
		if prog.Name == "" {
			return fmt.Errorf("progression %d: missing name", i)
		}
		if len(prog.Chords) == 0 {
			return fmt.Errorf("progression %q: no chords", prog.Name)
		}
		for _, c := range prog.Chords {
			if len(c.Shape) == 0 && len(c.PitchClasses) == 0 {
				return fmt.Errorf("progression %q: chord %q has neither shape nor pitch classes", prog.Name, c.Name)
			}
		}
	}
	return nil
}
