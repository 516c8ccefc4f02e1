package broadcast

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoRecipients is returned for an empty snapshot. Nothing is sent.
	ErrNoRecipients = errors.New("no subscribed recipients")
	// ErrBusy is returned while another broadcast holds the in-flight lock.
	ErrBusy = errors.New("a broadcast is already running")
	// ErrEmptyText rejects a broadcast without any text.
	ErrEmptyText = errors.New("broadcast text is empty")
	ErrClosed    = errors.New("broadcast service closed")
)

type Outcome uint8

const (
	Skipped Outcome = iota
	Delivered
	Unreachable
	Transient
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Unreachable:
		return "unreachable"
	case Transient:
		return "transient"
	default:
		return "skipped"
	}
}

// Result is the outcome of one Dispatch.
type Result struct {
	Outcomes    map[int64]Outcome
	Delivered   int
	Unreachable int
	Transient   int
	Skipped     int
	Took        time.Duration
}

func (r Result) Total() int { return r.Delivered + r.Unreachable + r.Transient + r.Skipped }

func (r *Result) add(o Outcome) {
	switch o {
	case Delivered:
		r.Delivered++
	case Unreachable:
		r.Unreachable++
	case Transient:
		r.Transient++
	default:
		r.Skipped++
	}
}

// Directory is the read view producing the fan-out target set.
type Directory interface {
	ListSubscribed(ctx context.Context) ([]int64, error)
}

// Unsubscriber flags a recipient that can no longer be reached.
type Unsubscriber interface {
	MarkUnsubscribed(ctx context.Context, id int64) (bool, error)
}

type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// JobStatus is a snapshot of one broadcast job.
type JobStatus struct {
	ID          string    `json:"id"`
	Initiator   int64     `json:"initiator,omitempty"`
	Preview     string    `json:"preview,omitempty"`
	State       State     `json:"state"`
	Total       int       `json:"total"`
	Done        int       `json:"done"`
	Delivered   int       `json:"delivered"`
	Unreachable int       `json:"unreachable"`
	Transient   int       `json:"transient"`
	Skipped     int       `json:"skipped"`
	CreatedAt   time.Time `json:"created_at"`
	DoneAt      time.Time `json:"done_at,omitempty"`
}

func (s JobStatus) Running() bool { return s.State == StateRunning }

// Took returns the wall time of a finished job, or the time so far.
func (s JobStatus) Took(now time.Time) time.Duration {
	if !s.DoneAt.IsZero() {
		return s.DoneAt.Sub(s.CreatedAt)
	}
	return now.Sub(s.CreatedAt)
}
