// Package notes holds note identities and the aggregator that tracks which
// notes every participant is currently sounding.
package notes

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

// Note is an absolute MIDI note number: octave*12 + pitch class.
type Note int

// MaxNote is the highest note a MIDI device can report.
const MaxNote Note = 127

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchClass returns the note's identity ignoring octave, in [0,11].
func (n Note) PitchClass() int {
	return PitchClass(int(n))
}

// Valid reports whether n is inside the MIDI note range.
func (n Note) Valid() bool {
	return n >= 0 && n <= MaxNote
}

func (n Note) String() string {
	if n < 0 {
		return fmt.Sprintf("?\"%d\"", int(n))
	}
	return fmt.Sprintf("%s%d", noteNames[n%12], (int(n)/12)-1)
}

// PitchClass reduces any integer to [0,11], including negatives.
func PitchClass(v int) int {
	pc := v % 12
	if pc < 0 {
		pc += 12
	}
	return pc
}

// PitchName returns the sharp-spelled name of a pitch class.
func PitchName(pc int) string {
	return noteNames[PitchClass(pc)]
}

// PitchSet is a set of pitch classes packed into the low 12 bits.
type PitchSet uint16

// PitchSetOf builds a set from pitch classes (reduced mod 12).
func PitchSetOf(pcs ...int) PitchSet {
	var s PitchSet
	for _, pc := range pcs {
		s = s.With(pc)
	}
	return s
}

// With returns s plus pc.
func (s PitchSet) With(pc int) PitchSet {
	return s | 1<<PitchClass(pc)
}

// Has reports whether pc is in s.
func (s PitchSet) Has(pc int) bool {
	return s&(1<<PitchClass(pc)) != 0
}

// Union returns the pitch classes in either set.
func (s PitchSet) Union(o PitchSet) PitchSet { return s | o }

// Empty reports whether s has no pitch classes.
func (s PitchSet) Empty() bool { return s&0x0fff == 0 }

// Len counts the pitch classes in s.
func (s PitchSet) Len() int { return bits.OnesCount16(uint16(s & 0x0fff)) }

func (s PitchSet) String() string {
	var names []string
	for pc := 0; pc < 12; pc++ {
		if s.Has(pc) {
			names = append(names, noteNames[pc])
		}
	}
	return "{" + strings.Join(names, " ") + "}"
}

// Sorted returns the notes in ascending order as a new slice.
func Sorted(ns []Note) []Note {
	out := make([]Note, len(ns))
	copy(out, ns)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
