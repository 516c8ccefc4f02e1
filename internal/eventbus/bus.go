// Package eventbus is a small in-memory fan-out used to decouple the broadcast
// service from observers (logging, metrics).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	BroadcastStarted      = "broadcast.started"
	BroadcastFinished     = "broadcast.finished"
	SubscriberUnsubscribe = "subscriber.unsubscribed"
)

// JobStarted is the Data of a BroadcastStarted event.
type JobStarted struct {
	JobID      string
	Initiator  int64
	Recipients int
}

// JobFinished is the Data of a BroadcastFinished event. Result is one of
// "completed", "cancelled", "empty" or "failed".
type JobFinished struct {
	JobID       string
	Result      string
	Delivered   int
	Unreachable int
	Transient   int
	Skipped     int
	Took        time.Duration
}

// Unsubscribed is the Data of a SubscriberUnsubscribe event.
type Unsubscribed struct {
	ChatID int64
	JobID  string
}

// Event is a lightweight signal. Publish never blocks: subscribers get buffered
// channels and a slow subscriber loses events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[uint64]*sub{}}
}

type sub struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]*sub
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	subs := make([]*sub, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.mu.Lock()
		if !s.closed {
			select {
			case s.ch <- e:
			default:
			}
		}
		s.mu.Unlock()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &sub{ch: make(chan Event, buffer)}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			s.mu.Lock()
			s.closed = true
			close(s.ch)
			s.mu.Unlock()
		})
	}
}
