package colormap

import (
	"time"

	"github.com/chase3718/notelight/internal/notes"
	"github.com/chase3718/notelight/internal/topology"
)

// Ratios are the brightness levels of the default mode's layers.
type Ratios struct {
	Sounding float64 `yaml:"sounding" json:"sounding"` // in chord and sounding
	Chord    float64 `yaml:"chord" json:"chord"`       // in chord only
	Key      float64 `yaml:"key" json:"key"`           // in key, not chord
}

// DefaultRatios are 0.6 / 0.25 / 0.05.
var DefaultRatios = Ratios{Sounding: 0.6, Chord: 0.25, Key: 0.05}

// DefaultFadeWindow is how long an idle display takes to go dark.
const DefaultFadeWindow = 5 * time.Second

// Policy holds the tunable parts of the default mode.
type Policy struct {
	Ratios     Ratios
	FadeWindow time.Duration
}

// DefaultPolicy returns the documented defaults.
func DefaultPolicy() Policy {
	return Policy{Ratios: DefaultRatios, FadeWindow: DefaultFadeWindow}
}

// Highlight is the chord and key currently featured on the display.
type Highlight struct {
	Chord notes.PitchSet
	Key   notes.PitchSet
	// Playing marks the chord as sounding on its own, as when a
	// progression is being played back.
	Playing bool
}

// Activity summarizes global note activity for the decay factor.
type Activity struct {
	Active bool          // some source is sounding right now
	Idle   time.Duration // time since the most recent activity
}

// Input is everything the mapper reads for one frame.
type Input struct {
	Sounding  notes.PitchSet
	Highlight Highlight
	Activity  Activity
}

// InputFrom derives mapper input from an aggregator snapshot at now.
// lastPlaying is the latest time the highlight was playing; it counts as
// activity like a sounding note does.
func InputFrom(snap notes.Snapshot, hl Highlight, now, lastPlaying time.Time) Input {
	last := snap.LastActivity
	if lastPlaying.After(last) {
		last = lastPlaying
	}
	idle := now.Sub(last)
	if idle < 0 {
		idle = 0
	}
	return Input{
		Sounding:  snap.Sounding(),
		Highlight: hl,
		Activity: Activity{
			Active: snap.Active() || hl.Playing,
			Idle:   idle,
		},
	}
}

// Decay is 1 while anything is active, otherwise a linear ramp from 1 to 0
// over window measured from the last activity, floored at 0.
func Decay(a Activity, window time.Duration) float64 {
	if a.Active {
		return 1
	}
	if window <= 0 {
		return 0
	}
	f := 1 - float64(a.Idle)/float64(window)
	if f < 0 {
		return 0
	}
	return f
}

// Mapper evaluates colors for one scheme, mode and policy. It holds no
// mutable state: equal inputs always give identical output.
type Mapper struct {
	Scheme Scheme
	Mode   Mode
	Policy Policy
}

// Brightness returns the default-mode brightness for pc, before decay.
// Layers take precedence in order; the highest matching one wins.
func (m Mapper) Brightness(pc int, in Input) float64 {
	chord := in.Highlight.Chord
	sounding := in.Sounding
	if chord.Empty() {
		chord = sounding
	}
	if in.Highlight.Playing {
		sounding = sounding.Union(in.Highlight.Chord)
	}

	r := m.Policy.Ratios
	switch {
	case chord.Has(pc) && sounding.Has(pc):
		return r.Sounding
	case chord.Has(pc):
		return r.Chord
	case in.Highlight.Key.Has(pc):
		return r.Key
	}
	return 0
}

// Color returns the color of a position with pitch class pc on row.
func (m Mapper) Color(pc, row int, in Input) RGB {
	hue := m.Scheme.Table()[notes.PitchClass(pc)]

	switch m.Mode {
	case Performance:
		if in.Sounding.Has(pc) {
			return hue
		}
		return Black
	case Diagnostic:
		if row == 0 || in.Sounding.Has(pc) {
			return hue
		}
		return Black
	}

	b := m.Brightness(pc, in) * Decay(in.Activity, m.Policy.FadeWindow)
	if b <= 0 {
		return Black
	}
	if b > 1 {
		b = 1
	}
	return hue.Scale(b)
}

// Frame renders every position of table in enumeration order.
func (m Mapper) Frame(table *topology.Table, in Input) []RGB {
	out := make([]RGB, 0, table.Len())
	table.Each(func(p topology.Position, pc int) {
		out = append(out, m.Color(pc, p.String, in))
	})
	return out
}
