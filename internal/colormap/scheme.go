// Package colormap turns a pitch class plus the current note activity into
// an LED color. Everything here is a pure function of its inputs.
package colormap

import "fmt"

// RGB is one LED's color.
type RGB struct {
	R, G, B uint8
}

// Black is an unlit LED.
var Black = RGB{}

// Scale multiplies each channel by brightness, truncating toward zero.
func (c RGB) Scale(brightness float64) RGB {
	return RGB{
		R: uint8(float64(c.R) * brightness),
		G: uint8(float64(c.G) * brightness),
		B: uint8(float64(c.B) * brightness),
	}
}

// Scheme selects one of the fixed pitch-class palettes.
type Scheme string

const (
	Chromatic Scheme = "chromatic"
	Harmonic  Scheme = "harmonic"
)

// Chromatic walks the color wheel in semitone order.
var chromaticTable = [12]RGB{
	{255, 0, 0},    // C
	{255, 69, 0},   // C#
	{255, 165, 0},  // D
	{255, 215, 0},  // D#
	{255, 255, 0},  // E
	{173, 255, 47}, // F
	{0, 255, 0},    // F#
	{0, 206, 209},  // G
	{0, 0, 255},    // G#
	{138, 43, 226}, // A
	{148, 0, 211},  // A#
	{199, 21, 133}, // B
}

// Harmonic places fifths next to each other on the wheel.
var harmonicTable = [12]RGB{
	{255, 0, 0},    // C
	{0, 206, 209},  // C#
	{255, 165, 0},  // D
	{138, 43, 226}, // D#
	{255, 255, 0},  // E
	{199, 21, 133}, // F
	{0, 255, 0},    // F#
	{255, 69, 0},   // G
	{0, 0, 255},    // G#
	{255, 215, 0},  // A
	{148, 0, 211},  // A#
	{173, 255, 47}, // B
}

// Table returns the scheme's 12-entry palette. Unknown schemes fall back to
// chromatic.
func (s Scheme) Table() [12]RGB {
	if s == Harmonic {
		return harmonicTable
	}
	return chromaticTable
}

// Next toggles between the two schemes.
func (s Scheme) Next() Scheme {
	if s == Chromatic {
		return Harmonic
	}
	return Chromatic
}

// ParseScheme validates a scheme name.
func ParseScheme(name string) (Scheme, error) {
	switch Scheme(name) {
	case Chromatic, Harmonic:
		return Scheme(name), nil
	}
	return "", fmt.Errorf("colormap: unknown scheme %q", name)
}

// Mode selects the rendering rule set.
type Mode string

const (
	// Default layers chord, key and activity brightness with idle fade.
	Default Mode = "default"
	// Performance lights only pitch classes sounding somewhere.
	Performance Mode = "performance"
	// Diagnostic shows the full palette for calibration.
	Diagnostic Mode = "diagnostic"
)

// ParseMode validates a mode name.
func ParseMode(name string) (Mode, error) {
	switch Mode(name) {
	case Default, Performance, Diagnostic:
		return Mode(name), nil
	}
	return "", fmt.Errorf("colormap: unknown mode %q", name)
}
