package notes

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/chase3718/notelight/internal/clock"
)

// ParticipantID identifies one note source, local or remote.
type ParticipantID string

// set is an immutable note set. Once stored in the aggregator it is never
// written again; every change stores a fresh set.
type set map[Note]struct{}

func (s set) notes() []Note {
	out := make([]Note, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s set) with(n Note) set {
	out := make(set, len(s)+1)
	for k := range s {
		out[k] = struct{}{}
	}
	out[n] = struct{}{}
	return out
}

func (s set) without(n Note) set {
	out := make(set, len(s))
	for k := range s {
		if k != n {
			out[k] = struct{}{}
		}
	}
	return out
}

func setOf(ns []Note) set {
	out := make(set, len(ns))
	for _, n := range ns {
		out[n] = struct{}{}
	}
	return out
}

// Aggregator is the single source of truth for participant -> active notes.
//
// The local participant's set is mutated note by note; remote sets are
// replaced wholesale. Each write swaps in a new immutable set under the
// lock, so readers see either the old or the new value for a key, never a
// partial one. Pitch classes are not collapsed here.
type Aggregator struct {
	local ParticipantID
	clock clock.Clock
	log   *slog.Logger

	mu           sync.RWMutex
	sets         map[ParticipantID]set
	lastActivity time.Time

	onLocal func([]Note)
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock sets the time source used to stamp activity.
func WithClock(c clock.Clock) Option {
	return func(a *Aggregator) { a.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

// WithLocalObserver registers fn to receive the new local set after every
// local change that actually altered it. fn runs on the mutating goroutine,
// outside the aggregator lock.
func WithLocalObserver(fn func([]Note)) Option {
	return func(a *Aggregator) { a.onLocal = fn }
}

// NewAggregator creates an aggregator for the given local participant. The
// activity clock starts at construction so an idle display fades out from
// startup.
func NewAggregator(local ParticipantID, opts ...Option) *Aggregator {
	a := &Aggregator{
		local: local,
		clock: clock.Real(),
		log:   slog.Default(),
		sets:  map[ParticipantID]set{local: {}},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.lastActivity = a.clock.Now()
	return a
}

// LocalID returns the local participant's id.
func (a *Aggregator) LocalID() ParticipantID { return a.local }

// Local returns the local participant's notes in ascending order.
func (a *Aggregator) Local() []Note {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sets[a.local].notes()
}

// All returns every participant's notes.
func (a *Aggregator) All() map[ParticipantID][]Note {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[ParticipantID][]Note, len(a.sets))
	for id, s := range a.sets {
		out[id] = s.notes()
	}
	return out
}

// AddLocal adds n to the local set. Returns false if it was already there.
func (a *Aggregator) AddLocal(n Note) bool {
	return a.mutateLocal(func(s set) (set, bool) {
		if _, ok := s[n]; ok {
			return s, false
		}
		return s.with(n), true
	})
}

// RemoveLocal removes n from the local set. Removing an absent note is a
// no-op and returns false.
func (a *Aggregator) RemoveLocal(n Note) bool {
	return a.mutateLocal(func(s set) (set, bool) {
		if _, ok := s[n]; !ok {
			return s, false
		}
		return s.without(n), true
	})
}

// ClearLocal empties the local set, e.g. when the capture device is lost.
func (a *Aggregator) ClearLocal() bool {
	return a.mutateLocal(func(s set) (set, bool) {
		return set{}, len(s) > 0
	})
}

func (a *Aggregator) mutateLocal(fn func(set) (set, bool)) bool {
	a.mu.Lock()
	next, changed := fn(a.sets[a.local])
	if !changed {
		a.mu.Unlock()
		return false
	}
	a.sets[a.local] = next
	a.lastActivity = a.clock.Now()
	current := next.notes()
	a.mu.Unlock()

	a.log.Debug("notes: local set changed", "participant", a.local, "notes", current)
	if a.onLocal != nil {
		a.onLocal(current)
	}
	return true
}

// ReplaceRemote stores ns as participant id's complete set, discarding
// whatever was there before. Replacing the local participant's set through
// this path is refused.
func (a *Aggregator) ReplaceRemote(id ParticipantID, ns []Note) {
	if id == a.local {
		a.log.Warn("notes: refusing remote replace of local participant", "participant", id)
		return
	}
	next := setOf(ns)

	a.mu.Lock()
	a.sets[id] = next
	a.lastActivity = a.clock.Now()
	a.mu.Unlock()

	a.log.Debug("notes: remote set replaced", "participant", id, "count", len(next))
}

// Snapshot is a read-consistent view of the aggregator at one instant.
type Snapshot struct {
	Sets         map[ParticipantID][]Note
	LastActivity time.Time
}

// Snapshot captures every participant's set and the last activity time.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	sets := make(map[ParticipantID][]Note, len(a.sets))
	for id, s := range a.sets {
		sets[id] = s.notes()
	}
	return Snapshot{Sets: sets, LastActivity: a.lastActivity}
}

// Active reports whether any participant is sounding at least one note.
func (s Snapshot) Active() bool {
	for _, ns := range s.Sets {
		if len(ns) > 0 {
			return true
		}
	}
	return false
}

// Sounding returns the pitch classes sounded by any participant.
func (s Snapshot) Sounding() PitchSet {
	var ps PitchSet
	for _, ns := range s.Sets {
		for _, n := range ns {
			ps = ps.With(n.PitchClass())
		}
	}
	return ps
}
