package broadcast

import (
	"context"
	"sync"
)

// Lock guards the single in-flight broadcast. TryAcquire never waits: it
// returns ErrBusy when the lock is held. release is idempotent.
type Lock interface {
	TryAcquire(ctx context.Context) (release func(), err error)
}

// memoryLock is a size-1 semaphore for a single process.
type memoryLock struct {
	sem chan struct{}
}

func NewMemoryLock() Lock {
	return &memoryLock{sem: make(chan struct{}, 1)}
}

func (l *memoryLock) TryAcquire(context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
	default:
		return nil, ErrBusy
	}
	var once sync.Once
	return func() { once.Do(func() { <-l.sem }) }, nil
}
