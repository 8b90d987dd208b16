// Package config loads the installation's configuration from a YAML file.
//
// The file is overlaid on Default, so it only needs the values that differ.
// The resulting Config is treated as immutable and passed to each component
// at construction.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/chase3718/notelight/internal/colormap"
	"github.com/chase3718/notelight/internal/notes"
	"github.com/chase3718/notelight/internal/progression"
	"github.com/chase3718/notelight/internal/topology"
	"github.com/chase3718/notelight/internal/wled"
)

// Config is the complete configuration.
type Config struct {
	Participant ParticipantConfig `yaml:"participant"`
	Topology    TopologyConfig    `yaml:"topology"`
	Render      RenderConfig      `yaml:"render"`

	// WLED lists the UDP LED controllers; each frame goes to all of them.
	WLED []wled.Device `yaml:"wled"`

	Serial SerialConfig `yaml:"serial"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	MIDI   MIDIConfig   `yaml:"midi"`
	Status StatusConfig `yaml:"status"`

	// Progressions replace the built-in chord progressions when set.
	Progressions []progression.Progression `yaml:"progressions,omitempty"`
}

// ParticipantConfig identifies this installation on the bus.
type ParticipantConfig struct {
	// ID is generated as <instrument>_<hex8> when empty.
	ID         string `yaml:"id"`
	Instrument string `yaml:"instrument"`
}

// TopologyConfig describes the physical layout.
type TopologyConfig struct {
	// Kind is "fretted" or "linear".
	Kind topology.Kind `yaml:"kind"`
	// Tuning names a built-in tuning. Ignored when CustomTuning is set.
	Tuning       string `yaml:"tuning"`
	CustomTuning []int  `yaml:"custom_tuning,omitempty"`
	Frets        int    `yaml:"frets"`
	// FirstNote and Keys describe a linear keyboard.
	FirstNote int `yaml:"first_note"`
	Keys      int `yaml:"keys"`
}

// RenderConfig tunes the render loop and color mapping.
type RenderConfig struct {
	Rate         int             `yaml:"rate"`
	Scheme       colormap.Scheme `yaml:"scheme"`
	Mode         colormap.Mode   `yaml:"mode"`
	Ratios       colormap.Ratios `yaml:"ratios"`
	FadeWindow   time.Duration   `yaml:"fade_window"`
	ChordAdvance time.Duration   `yaml:"chord_advance"`
}

// SerialConfig enables the serial LED controller when Port is set.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	LEDs int    `yaml:"leds"`
}

// MQTTConfig locates the peer bus.
type MQTTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Namespace      string        `yaml:"namespace"`
	Kinds          []string      `yaml:"kinds"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// MIDIConfig drives input device selection.
type MIDIConfig struct {
	// Device is opened at startup when present; otherwise the remembered
	// or a preferred device is used.
	Device       string        `yaml:"device"`
	Preferred    []string      `yaml:"preferred"`
	Excluded     []string      `yaml:"excluded"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// StateFile remembers the last opened device across runs.
	StateFile string `yaml:"state_file"`
}

// StatusConfig configures the HTTP status surface. Empty Addr disables it.
type StatusConfig struct {
	Addr        string        `yaml:"addr"`
	CORSOrigins []string      `yaml:"cors_origins"`
	Debounce    time.Duration `yaml:"debounce"`
}

// Default returns the configuration used for every unset value.
func Default() Config {
	return Config{
		Participant: ParticipantConfig{Instrument: "guitar"},
		Topology: TopologyConfig{
			Kind:   topology.Fretted,
			Tuning: topology.StandardTuning,
			Frets:  25,
		},
		Render: RenderConfig{
			Rate:         30,
			Scheme:       colormap.Chromatic,
			Mode:         colormap.Default,
			Ratios:       colormap.DefaultRatios,
			FadeWindow:   colormap.DefaultFadeWindow,
			ChordAdvance: progression.DefaultAdvance,
		},
		WLED: []wled.Device{
			{Name: "fretboard", Host: "wled.local", Port: wled.DefaultPort, LEDs: 150},
		},
		Serial: SerialConfig{Baud: 115200},
		MQTT: MQTTConfig{
			Enabled:        true,
			Host:           "localhost",
			Port:           1883,
			Namespace:      "centaurus/music",
			Kinds:          []string{"piano", "drums", "bass", "guitar"},
			ConnectTimeout: 3 * time.Second,
		},
		MIDI: MIDIConfig{
			Preferred:    []string{"Launchkey", "Novation"},
			Excluded:     []string{"Midi Through", "Through Port", "Dummy"},
			PollInterval: time.Millisecond,
			StateFile:    "last_midi_device.txt",
		},
		Status: StatusConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
			Debounce:    300 * time.Millisecond,
		},
	}
}

// Load reads path over Default, fills in derived values and validates.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if cfg.Participant.ID == "" {
		cfg.Participant.ID = string(NewParticipantID(cfg.Participant.Instrument))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewParticipantID generates an id of the form <instrument>_<hex8>.
func NewParticipantID(instrument string) notes.ParticipantID {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return notes.ParticipantID(instrument + "_" + hex[:8])
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Participant.Instrument == "" {
		add("participant.instrument is required")
	}

	switch c.Topology.Kind {
	case topology.Fretted:
		if len(c.Topology.CustomTuning) > 0 {
			for i, pc := range c.Topology.CustomTuning {
				if pc < 0 || pc > 11 {
					add("topology.custom_tuning[%d]: pitch class %d out of range 0..11", i, pc)
				}
			}
		} else if _, err := topology.Tuning(c.Topology.Tuning); err != nil {
			add("topology.tuning: %v", err)
		}
		if c.Topology.Frets <= 0 {
			add("topology.frets must be positive")
		}
	case topology.Linear:
		if !notes.Note(c.Topology.FirstNote).Valid() {
			add("topology.first_note %d out of range", c.Topology.FirstNote)
		}
		if c.Topology.Keys <= 0 {
			add("topology.keys must be positive")
		}
	default:
		add("topology.kind %q: want fretted or linear", c.Topology.Kind)
	}

	if c.Render.Rate <= 0 || c.Render.Rate > 240 {
		add("render.rate %d out of range 1..240", c.Render.Rate)
	}
	if _, err := colormap.ParseScheme(string(c.Render.Scheme)); err != nil {
		add("render.scheme: %v", err)
	}
	if _, err := colormap.ParseMode(string(c.Render.Mode)); err != nil {
		add("render.mode: %v", err)
	}
	ratios := []struct {
		name string
		v    float64
	}{
		{"sounding", c.Render.Ratios.Sounding},
		{"chord", c.Render.Ratios.Chord},
		{"key", c.Render.Ratios.Key},
	}
	for _, r := range ratios {
		if r.v < 0 || r.v > 1 {
			add("render.ratios.%s %.2f out of range 0..1", r.name, r.v)
		}
	}
	if c.Render.FadeWindow < 0 {
		add("render.fade_window must not be negative")
	}

	for i, d := range c.WLED {
		if d.Host == "" {
			add("wled[%d]: host is required", i)
		}
		if d.LEDs <= 0 {
			add("wled[%d]: leds must be positive", i)
		}
		if d.Port < 0 || d.Port > 65535 {
			add("wled[%d]: port %d out of range", i, d.Port)
		}
	}

	if c.Serial.Port != "" {
		if c.Serial.Baud <= 0 {
			add("serial.baud must be positive")
		}
		if c.Serial.LEDs <= 0 {
			add("serial.leds must be positive")
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.Host == "" {
			add("mqtt.host is required")
		}
		if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
			add("mqtt.port %d out of range", c.MQTT.Port)
		}
		if c.MQTT.Namespace == "" {
			add("mqtt.namespace is required")
		}
	}

	if len(c.Progressions) > 0 {
		if err := progression.Validate(c.Progressions); err != nil {
			add("progressions: %v", err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// BuildTopology builds the configured table and names its tuning.
func (c Config) BuildTopology() (*topology.Table, string, error) {
	if c.Topology.Kind == topology.Linear {
		t, err := topology.Keyboard(notes.Note(c.Topology.FirstNote), c.Topology.Keys)
		return t, "", err
	}
	if len(c.Topology.CustomTuning) > 0 {
		t, err := topology.Build(c.Topology.CustomTuning, c.Topology.Frets)
		return t, "custom", err
	}
	tuning, err := topology.Tuning(c.Topology.Tuning)
	if err != nil {
		return nil, "", err
	}
	t, err := topology.Build(tuning, c.Topology.Frets)
	return t, c.Topology.Tuning, err
}

// Policy is the configured brightness policy.
func (c Config) Policy() colormap.Policy {
	return colormap.Policy{Ratios: c.Render.Ratios, FadeWindow: c.Render.FadeWindow}
}

// ChordProgressions returns the configured progressions, or the built-ins.
func (c Config) ChordProgressions() []progression.Progression {
	if len(c.Progressions) > 0 {
		return c.Progressions
	}
	return progression.Builtin()
}

// LastDevice reads the remembered MIDI device name. A missing file is not
// an error.
func LastDevice(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read last device: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SaveLastDevice remembers name for the next run.
func SaveLastDevice(path, name string) error {
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, []byte(name+"\n"), 0o644); err != nil {
		return fmt.Errorf("save last device: %w", err)
	}
	return nil
}
