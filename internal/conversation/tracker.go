package conversation

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type State int

const (
	Idle State = iota
	AwaitingBroadcastText
)

func (s State) String() string {
	switch s {
	case AwaitingBroadcastText:
		return "awaiting_broadcast_text"
	default:
		return "idle"
	}
}

// Tracker keeps one state per initiator. Only AwaitingBroadcastText entries
// are stored; a missing or expired entry is Idle.
type Tracker struct {
	gate    Gate
	timeout time.Duration
	clock   clockwork.Clock

	mu      sync.Mutex
	waiting map[int64]time.Time // initiator -> deadline
}

// NewTracker returns a Tracker whose awaiting entries expire after timeout.
// timeout <= 0 disables expiry. A nil clock uses the real clock.
func NewTracker(gate Gate, timeout time.Duration, clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		gate:    gate,
		timeout: timeout,
		clock:   clock,
		waiting: make(map[int64]time.Time),
	}
}

func (t *Tracker) Gate() Gate { return t.gate }

// Begin moves id to AwaitingBroadcastText if the gate accepts it. On
// ErrUnauthorized the tracker is left untouched.
func (t *Tracker) Begin(id int64) error {
	if err := t.gate.Check(id); err != nil {
		return err
	}
	var deadline time.Time
	if t.timeout > 0 {
		deadline = t.clock.Now().Add(t.timeout)
	}
	t.mu.Lock()
	t.waiting[id] = deadline
	t.mu.Unlock()
	return nil
}

// State reports the current state of id without changing it.
func (t *Tracker) State(id int64) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.liveLocked(id) {
		return AwaitingBroadcastText
	}
	return Idle
}

// Consume is called for every inbound message. It reports whether id was
// awaiting broadcast text and always leaves id Idle.
func (t *Tracker) Consume(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	live := t.liveLocked(id)
	delete(t.waiting, id)
	return live
}

// Cancel drops a pending awaiting state and reports whether there was one.
func (t *Tracker) Cancel(id int64) bool { return t.Consume(id) }

// Sweep drops expired entries and returns how many were removed.
func (t *Tracker) Sweep() int {
	if t.timeout <= 0 {
		return 0
	}
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, deadline := range t.waiting {
		if !now.Before(deadline) {
			delete(t.waiting, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored awaiting entries, expired ones included.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiting)
}

func (t *Tracker) liveLocked(id int64) bool {
	deadline, ok := t.waiting[id]
	if !ok {
		return false
	}
	return deadline.IsZero() || t.clock.Now().Before(deadline)
}
