// Package link tracks the connection state of the pipeline's adapters and
// releases their resources at shutdown.
//
// Every adapter moves through the same machine:
//
//	Disconnected -> Connecting      (explicit connect request)
//	Connecting   -> Connected       (success)
//	Connecting   -> Error -> Disconnected (failure, error kept in the report)
//	Connected    -> Disconnected    (explicit close or transport loss)
//
// There is no automatic retry; reconnecting is always up to the caller.
package link

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chase3718/notelight/internal/clock"
)

// State is an adapter's connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	}
	return "unknown"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Report is the observable status of one adapter.
type Report struct {
	Name   string    `json:"name"`
	State  State     `json:"state"`
	Detail string    `json:"detail,omitempty"`
	Err    string    `json:"error,omitempty"`
	Since  time.Time `json:"since"`
}

func (r Report) String() string {
	s := fmt.Sprintf("%s: %s", r.Name, r.State)
	if r.Detail != "" {
		s += " (" + r.Detail + ")"
	}
	if r.Err != "" {
		s += ": " + r.Err
	}
	return s
}

// Status holds one adapter's state. Safe for concurrent use.
type Status struct {
	name  string
	clock clock.Clock
	log   *slog.Logger

	mu     sync.Mutex
	report Report
}

// NewStatus starts a status in Disconnected.
func NewStatus(name string, c clock.Clock, log *slog.Logger) *Status {
	if c == nil {
		c = clock.Real()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Status{
		name:   name,
		clock:  c,
		log:    log,
		report: Report{Name: name, State: Disconnected, Since: c.Now()},
	}
}

// Report returns the latest report.
func (s *Status) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// State returns the current state.
func (s *Status) State() State {
	return s.Report().State
}

// Begin moves Disconnected -> Connecting. It fails if a connection is
// already in progress or established.
func (s *Status) Begin(detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report.State != Disconnected {
		return fmt.Errorf("%s: cannot connect while %s", s.name, s.report.State)
	}
	s.setLocked(Connecting, detail, "")
	return nil
}

// Succeed moves Connecting -> Connected.
func (s *Status) Succeed(detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report.State != Connecting {
		s.log.Warn("link: unexpected success", "adapter", s.name, "state", s.report.State)
	}
	s.setLocked(Connected, detail, "")
}

// Fail records err, passing through Error back to Disconnected. The error
// stays visible in the report until the next transition.
func (s *Status) Fail(detail string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.setLocked(Error, detail, msg)
	s.log.Warn("link: connect failed", "adapter", s.name, "detail", detail, "err", err)
	s.report.State = Disconnected
}

// Drop moves Connected -> Disconnected, from an explicit close (err nil)
// or a transport-level loss.
func (s *Status) Drop(detail string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := ""
	if err != nil {
		msg = err.Error()
		s.log.Warn("link: connection lost", "adapter", s.name, "detail", detail, "err", err)
	}
	s.setLocked(Disconnected, detail, msg)
}

func (s *Status) setLocked(state State, detail, errMsg string) {
	prev := s.report.State
	s.report = Report{Name: s.name, State: state, Detail: detail, Err: errMsg, Since: s.clock.Now()}
	if prev != state {
		s.log.Info("link: state change", "adapter", s.name, "from", prev, "to", state, "detail", detail)
	}
}

// MarshalJSON encodes the latest report.
func (s *Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Report())
}
