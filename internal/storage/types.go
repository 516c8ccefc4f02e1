package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable matches every error caused by the backing database. A
	// cancelled or expired caller context is not an outage and does not match.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrInvalidProfile is returned by Upsert for a profile without an id.
	ErrInvalidProfile = errors.New("profile id is required")
)

// OpError wraps a backing store failure with the operation that hit it.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return "storage " + e.Op + ": " + e.Err.Error() }

func (e *OpError) Unwrap() error { return e.Err }

func (e *OpError) Is(target error) bool {
	if target != ErrUnavailable {
		return false
	}
	return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, context.DeadlineExceeded)
}

// Config configures storage.
//
// Driver values: "sqlite" (Path is the database file), "postgres" and "mysql"
// (DSN is the connection string).
type Config struct {
	Driver       string
	DSN          string
	Path         string
	BusyTimeout  time.Duration // sqlite only
	MaxOpenConns int           // postgres/mysql; 0 keeps the driver default
}

// Profile is the registration payload taken from an inbound update.
type Profile struct {
	ID          int64
	DisplayName string
	Handle      string
	Locale      string
}

// Subscriber is one row of the subscriber table.
type Subscriber struct {
	ID          int64     `db:"chat_id"`
	DisplayName string    `db:"display_name"`
	Handle      string    `db:"handle"`
	Locale      string    `db:"locale"`
	Subscribed  bool      `db:"subscribed"`
	CreatedAt   time.Time `db:"-"`
	UpdatedAt   time.Time `db:"-"`
}

type Stats struct {
	Total      int
	Subscribed int
}

// Store is the subscriber registry shared by the bot and the broadcast CLI.
type Store interface {
	// Upsert inserts or refreshes the row for p.ID and always marks it subscribed.
	Upsert(ctx context.Context, p Profile) error
	// ListSubscribed returns subscribed ids in ascending order, read in one statement.
	ListSubscribed(ctx context.Context) ([]int64, error)
	// MarkUnsubscribed clears the subscribed flag. Unknown or already
	// unsubscribed ids are a no-op and report changed=false.
	MarkUnsubscribed(ctx context.Context, id int64) (changed bool, err error)
	Get(ctx context.Context, id int64) (Subscriber, bool, error)
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}
