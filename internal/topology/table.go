// Package topology maps physical input positions (string/fret on a fretted
// instrument, key index on a keyboard) to pitch classes.
package topology

import (
	"errors"
	"fmt"

	"github.com/chase3718/notelight/internal/notes"
)

// Kind distinguishes the two supported layouts.
type Kind string

const (
	Fretted Kind = "fretted"
	Linear  Kind = "linear"
)

// Position addresses one cell: String is the row (always 0 for a linear
// layout), Fret the column.
type Position struct {
	String int `json:"string"`
	Fret   int `json:"fret"`
}

// Table is the derived position -> pitch class grid:
//
//	cells[s][f] = (tuning[s] + f) mod 12
//
// A Table is never modified after Build returns; a tuning change builds a
// new one.
type Table struct {
	kind   Kind
	tuning []int
	cells  [][]int
}

var errEmptyTuning = errors.New("topology: tuning has no strings")

// Build derives the fretted table for tuning (open pitch class per string)
// with frets columns per string, fret 0 being the open string.
func Build(tuning []int, frets int) (*Table, error) {
	if len(tuning) == 0 {
		return nil, errEmptyTuning
	}
	if frets <= 0 {
		return nil, fmt.Errorf("topology: fret count must be positive, got %d", frets)
	}
	return build(Fretted, tuning, frets), nil
}

// Keyboard derives the single-row table of a keyboard whose lowest key is
// first and which has keys keys.
func Keyboard(first notes.Note, keys int) (*Table, error) {
	if keys <= 0 {
		return nil, fmt.Errorf("topology: key count must be positive, got %d", keys)
	}
	return build(Linear, []int{first.PitchClass()}, keys), nil
}

func build(kind Kind, tuning []int, width int) *Table {
	t := &Table{
		kind:   kind,
		tuning: make([]int, len(tuning)),
		cells:  make([][]int, len(tuning)),
	}
	for s, open := range tuning {
		t.tuning[s] = notes.PitchClass(open)
		row := make([]int, width)
		for f := range row {
			row[f] = notes.PitchClass(open + f)
		}
		t.cells[s] = row
	}
	return t
}

// Kind reports the layout the table was built for.
func (t *Table) Kind() Kind { return t.kind }

// Strings is the number of rows.
func (t *Table) Strings() int { return len(t.cells) }

// Frets is the number of columns per row.
func (t *Table) Frets() int { return len(t.cells[0]) }

// Len is the number of addressable positions.
func (t *Table) Len() int { return t.Strings() * t.Frets() }

// Tuning returns a copy of the open pitch classes.
func (t *Table) Tuning() []int { return append([]int(nil), t.tuning...) }

// PitchClass returns the pitch class at p. ok is false when p is outside
// the table.
func (t *Table) PitchClass(p Position) (pc int, ok bool) {
	if p.String < 0 || p.String >= t.Strings() || p.Fret < 0 || p.Fret >= t.Frets() {
		return 0, false
	}
	return t.cells[p.String][p.Fret], true
}

// Index is p's offset in enumeration order.
func (t *Table) Index(p Position) int {
	return p.String*t.Frets() + p.Fret
}

// Positions lists every cell in LED enumeration order: outer loop over
// strings, inner loop over frets.
func (t *Table) Positions() []Position {
	out := make([]Position, 0, t.Len())
	for s := range t.cells {
		for f := range t.cells[s] {
			out = append(out, Position{String: s, Fret: f})
		}
	}
	return out
}

// Each calls fn for every cell in enumeration order.
func (t *Table) Each(fn func(p Position, pc int)) {
	for s, row := range t.cells {
		for f, pc := range row {
			fn(Position{String: s, Fret: f}, pc)
		}
	}
}
