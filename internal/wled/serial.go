package wled

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"

	"github.com/chase3718/notelight/internal/colormap"
)

// SerialSink writes framed DRGB packets to a serial-attached LED
// controller. Writes happen on a dedicated goroutine fed by a one-slot
// mailbox holding the newest frame, so a slow port drops stale frames
// instead of stalling the render loop.
type SerialSink struct {
	name string
	leds int
	port io.WriteCloser
	log  *slog.Logger

	mailbox chan []byte
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// OpenSerial opens the named serial device at baud.
func OpenSerial(name string, baud, leds int, log *slog.Logger) (*SerialSink, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("wled: open serial %s at %d baud: %w", name, baud, err)
	}
	if log == nil {
		log = slog.Default()
	}
	log.Info("serial: port opened", "device", name, "baud", baud, "leds", leds)
	return newSerialSink(name, leds, p, log), nil
}

func newSerialSink(name string, leds int, port io.WriteCloser, log *slog.Logger) *SerialSink {
	if log == nil {
		log = slog.Default()
	}
	s := &SerialSink{
		name:    name,
		leds:    leds,
		port:    port,
		log:     log,
		mailbox: make(chan []byte, 1),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writer()
	return s
}

// Send frames and queues the packet, replacing any frame not yet written.
func (s *SerialSink) Send(frame []colormap.RGB) error {
	packet, _ := Encode(frame, s.leds)
	framed, err := Frame(packet)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransmit, s.name, err)
	}
	select {
	case <-s.done:
		return fmt.Errorf("%w: %s: sink closed", ErrTransmit, s.name)
	default:
	}
	for {
		select {
		case s.mailbox <- framed:
			return nil
		default:
		}
		// Mailbox full: discard the stale frame and retry.
		select {
		case <-s.mailbox:
		default:
		}
	}
}

func (s *SerialSink) writer() {
	defer s.wg.Done()
	failing := false
	for {
		select {
		case <-s.done:
			return
		case data := <-s.mailbox:
			if _, err := s.port.Write(data); err != nil {
				if !failing {
					s.log.Error("serial: write error", "device", s.name, "err", err)
				}
				failing = true
				continue
			}
			if failing {
				s.log.Info("serial: write recovered", "device", s.name)
			}
			failing = false
		}
	}
}

// Close stops the writer and closes the port. The port is closed before
// waiting on the writer so a Write stuck on the device returns.
func (s *SerialSink) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.log.Info("serial: closing port", "device", s.name)
		err = s.port.Close()
		s.wg.Wait()
	})
	return err
}
