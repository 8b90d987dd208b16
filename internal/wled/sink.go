package wled

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/chase3718/notelight/internal/colormap"
)

// Sink accepts one rendered frame per tick.
type Sink interface {
	Send(frame []colormap.RGB) error
	Close() error
}

// Device is one LED controller reachable over UDP.
type Device struct {
	Name string `yaml:"name" json:"name"`
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
	LEDs int    `yaml:"leds" json:"leds"`
}

func (d Device) addr() string {
	port := d.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(port))
}

// UDPSink sends one DRGB datagram per frame to a single device. No reply
// is read and nothing is retried.
type UDPSink struct {
	dev  Device
	conn *net.UDPConn
	dst  *net.UDPAddr
	log  *slog.Logger

	mu        sync.Mutex
	failing   bool
	truncWarn bool
}

// DialUDP resolves dev and opens an unconnected UDP socket for it.
func DialUDP(dev Device, log *slog.Logger) (*UDPSink, error) {
	if log == nil {
		log = slog.Default()
	}
	dst, err := net.ResolveUDPAddr("udp", dev.addr())
	if err != nil {
		return nil, fmt.Errorf("wled: resolve %s: %w", dev.addr(), err)
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("wled: open socket: %w", err)
	}
	log.Info("wled: sink ready", "device", dev.Name, "addr", dst.String(), "leds", dev.LEDs)
	return &UDPSink{dev: dev, conn: conn, dst: dst, log: log}, nil
}

// Send encodes and transmits frame.
func (s *UDPSink) Send(frame []colormap.RGB) error {
	packet, truncated := Encode(frame, s.dev.LEDs)

	s.mu.Lock()
	defer s.mu.Unlock()
	if truncated && !s.truncWarn {
		s.log.Warn("wled: frame larger than strip, truncating",
			"device", s.dev.Name, "positions", len(frame), "leds", s.dev.LEDs)
		s.truncWarn = true
	}

	_, err := s.conn.WriteToUDP(packet, s.dst)
	if err != nil {
		if !s.failing {
			s.log.Warn("wled: send failed", "device", s.dev.Name, "err", err)
		} else {
			s.log.Debug("wled: send failed", "device", s.dev.Name, "err", err)
		}
		s.failing = true
		return fmt.Errorf("%w: %s: %v", ErrTransmit, s.dev.Name, err)
	}
	if s.failing {
		s.log.Info("wled: send recovered", "device", s.dev.Name)
		s.failing = false
	}
	return nil
}

// Close releases the socket.
func (s *UDPSink) Close() error {
	s.log.Info("wled: closing sink", "device", s.dev.Name)
	return s.conn.Close()
}

// Fanout sends each frame to several sinks; every sink gets the frame even
// if an earlier one fails.
type Fanout []Sink

// Send forwards frame to every sink and joins their errors.
func (f Fanout) Send(frame []colormap.RGB) error {
	var errs []error
	for _, s := range f {
		if err := s.Send(frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
