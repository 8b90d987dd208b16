package notes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPitchClassWrapsNegatives(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 0}, {11, 11}, {12, 0}, {64, 4}, {-1, 11}, {-12, 0}, {-13, 11},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, PitchClass(c.in), "PitchClass(%d)", c.in)
	}
	assert.Equal(t, 4, Note(64).PitchClass())
}

func TestNoteString(t *testing.T) {
	assert.Equal(t, "E4", Note(64).String())
	assert.Equal(t, "C-1", Note(0).String())
	assert.Equal(t, "A0", Note(21).String())
}

func TestPitchSet(t *testing.T) {
	s := PitchSetOf(0, 4, 7, 16)
	assert.True(t, s.Has(0))
	assert.True(t, s.Has(4))
	assert.True(t, s.Has(19), "19 reduces to 7")
	assert.False(t, s.Has(1))
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, "{C E G}", s.String())

	var empty PitchSet
	assert.True(t, empty.Empty())
	assert.Equal(t, PitchSetOf(0, 4, 7, 9), s.Union(PitchSetOf(9)))
}
