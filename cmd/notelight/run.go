package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chase3718/notelight/internal/clock"
	"github.com/chase3718/notelight/internal/config"
	"github.com/chase3718/notelight/internal/link"
	"github.com/chase3718/notelight/internal/midiin"
	"github.com/chase3718/notelight/internal/notes"
	"github.com/chase3718/notelight/internal/peer"
	"github.com/chase3718/notelight/internal/progression"
	"github.com/chase3718/notelight/internal/render"
	"github.com/chase3718/notelight/internal/statusapi"
	"github.com/chase3718/notelight/internal/wled"
)

var configPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the visualizer until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(configPath)
	},
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config (defaults when empty)")
	rootCmd.AddCommand(runCmd)
}

// app holds everything run starts, in acquisition order.
type app struct {
	closers []link.Closer
}

func (a *app) own(name string, close func() error) {
	a.closers = append(a.closers, link.Closer{Name: name, Close: close})
}

// shutdown releases resources in reverse acquisition order.
func (a *app) shutdown() error {
	closers := slices.Clone(a.closers)
	slices.Reverse(closers)
	return link.CloseAll(logger, closers...)
}

func run(path string) (err error) {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	id := notes.ParticipantID(cfg.Participant.ID)
	logger.Info("notelight starting",
		"participant", id,
		"topology", cfg.Topology.Kind,
		"tuning", cfg.Topology.Tuning,
		"wled_devices", len(cfg.WLED),
		"serial", cfg.Serial.Port,
		"mqtt", cfg.MQTT.Enabled,
		"rate_hz", cfg.Render.Rate,
		"scheme", cfg.Render.Scheme,
		"mode", cfg.Render.Mode,
	)

	table, tuning, err := cfg.BuildTopology()
	if err != nil {
		return err
	}

	a := &app{}
	defer func() {
		if cerr := a.shutdown(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	clk := clock.Real()

	// The publisher is attached below, before any local note can arrive.
	var pub *peer.Publisher
	agg := notes.NewAggregator(id,
		notes.WithClock(clk),
		notes.WithLogger(logger),
		notes.WithLocalObserver(func(ns []notes.Note) {
			if pub != nil {
				pub.PublishNotes(ns)
			}
		}),
	)

	sink, err := openSinks(a, cfg)
	if err != nil {
		return err
	}

	var peerAdapter *peer.Adapter
	if cfg.MQTT.Enabled {
		dial := peer.MQTTDialer(peer.MQTTOptions{
			Host:           cfg.MQTT.Host,
			Port:           cfg.MQTT.Port,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
			Logger:         logger,
		})
		peerAdapter = peer.New(dial, agg, peer.Options{
			Namespace:  cfg.MQTT.Namespace,
			Instrument: cfg.Participant.Instrument,
			Kinds:      cfg.MQTT.Kinds,
			Clock:      clk,
			Logger:     logger,
		})
		pub = peerAdapter.Publisher()
		a.own("mqtt", peerAdapter.Close)
		if err := peerAdapter.Connect(); err != nil {
			logger.Warn("mqtt: not connected, POST /peer/connect to retry", "err", err)
		}
	}

	midiAdapter := startMIDI(a, cfg, agg, clk)

	controls := render.NewControls(table, render.Settings{
		Scheme: cfg.Render.Scheme,
		Mode:   cfg.Render.Mode,
		Policy: cfg.Policy(),
		Tuning: tuning,
	}, progression.NewPlayer(cfg.ChordProgressions(), cfg.Render.ChordAdvance))
	loop := render.NewLoop(agg, controls, sink, render.LoopOptions{
		Rate:   cfg.Render.Rate,
		Clock:  clk,
		Logger: logger,
	})
	go loop.Run()
	a.own("render", loop.Close)

	if cfg.Status.Addr != "" {
		deps := statusapi.Deps{Notes: agg, Controls: controls, Frames: loop}
		if midiAdapter != nil {
			deps.MIDI = midiAdapter
		}
		if peerAdapter != nil {
			deps.Peer = peerAdapter
		}
		srv := statusapi.New(deps, statusapi.Options{
			CORSOrigins: cfg.Status.CORSOrigins,
			Debounce:    cfg.Status.Debounce,
			Clock:       clk,
			Logger:      logger,
		})
		ln, err := net.Listen("tcp", cfg.Status.Addr)
		if err != nil {
			return fmt.Errorf("status listen %s: %w", cfg.Status.Addr, err)
		}
		go func() {
			if err := srv.Serve(ln); err != nil {
				logger.Error("status: server stopped", "err", err)
			}
		}()
		a.own("status", srv.Close)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	logger.Info("running, interrupt to stop")
	s := <-sig
	logger.Info("shutting down", "signal", s.String())
	return nil
}

// openSinks opens every configured LED controller and returns them as one
// sink.
func openSinks(a *app, cfg config.Config) (wled.Fanout, error) {
	var sinks wled.Fanout
	for _, dev := range cfg.WLED {
		s, err := wled.DialUDP(dev, logger)
		if err != nil {
			return nil, err
		}
		a.own("wled "+dev.Name, s.Close)
		sinks = append(sinks, s)
	}
	if cfg.Serial.Port != "" {
		s, err := wled.OpenSerial(cfg.Serial.Port, cfg.Serial.Baud, cfg.Serial.LEDs, logger)
		if err != nil {
			return nil, err
		}
		a.own("serial "+cfg.Serial.Port, s.Close)
		sinks = append(sinks, s)
	}
	if len(sinks) == 0 {
		logger.Warn("no LED outputs configured, rendering for status only")
	}
	return sinks, nil
}

// startMIDI opens the capture adapter. A missing MIDI backend is not fatal;
// it returns nil and the installation runs on peer notes alone.
func startMIDI(a *app, cfg config.Config, agg *notes.Aggregator, clk clock.Clock) *midiin.Adapter {
	drv, err := midiin.NewRtMIDI(cfg.MIDI.Excluded, logger)
	if err != nil {
		logger.Error("midi: driver unavailable", "err", err)
		return nil
	}
	a.own("midi driver", drv.Close)

	last, err := config.LastDevice(cfg.MIDI.StateFile)
	if err != nil {
		logger.Warn("midi: cannot read last device", "err", err)
	}
	adapter := midiin.New(drv, agg, midiin.Options{
		Preferred:    cfg.MIDI.Preferred,
		LastUsed:     last,
		PollInterval: cfg.MIDI.PollInterval,
		Clock:        clk,
		Logger:       logger,
		OnConnected: func(name string) {
			if err := config.SaveLastDevice(cfg.MIDI.StateFile, name); err != nil {
				logger.Warn("midi: cannot remember device", "err", err)
			}
		},
	})
	a.own("midi", adapter.Close)

	if cfg.MIDI.Device != "" {
		err = adapter.Connect(cfg.MIDI.Device)
	} else {
		err = adapter.Next()
	}
	if errors.Is(err, midiin.ErrDeviceUnavailable) {
		logger.Warn("midi: no device yet, POST /midi/next to rescan", "err", err)
	} else if err != nil {
		logger.Error("midi: connect failed", "err", err)
	}
	return adapter
}
