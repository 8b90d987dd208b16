package topology

import "fmt"

// Named tunings, open pitch class per string from the low string up.
var tunings = map[string][]int{
	"E Standard": {4, 9, 2, 7, 11, 4}, // E A D G B E
	"D Standard": {2, 7, 0, 5, 9, 2},  // D G C F A D
	"Drop D":     {2, 9, 2, 7, 11, 4}, // D A D G B E
}

// tuningOrder is the cycling order of the named tunings.
var tuningOrder = []string{"E Standard", "D Standard", "Drop D"}

// StandardTuning is the default guitar tuning.
const StandardTuning = "E Standard"

// Tuning looks up a named tuning. The returned slice is a copy.
func Tuning(name string) ([]int, error) {
	t, ok := tunings[name]
	if !ok {
		return nil, fmt.Errorf("topology: unknown tuning %q", name)
	}
	return append([]int(nil), t...), nil
}

// TuningNames lists the named tunings in cycling order.
func TuningNames() []string {
	return append([]string(nil), tuningOrder...)
}

// NextTuning returns the tuning after name in cycling order, wrapping
// around. An unknown name yields the first tuning.
func NextTuning(name string) string {
	for i, n := range tuningOrder {
		if n == name {
			return tuningOrder[(i+1)%len(tuningOrder)]
		}
	}
	return tuningOrder[0]
}
