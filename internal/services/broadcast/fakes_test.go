package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"castbot/internal/transport"
)

var errFlood = errors.New("telegram: too many requests")

type fakeSender struct {
	mu      sync.Mutex
	fail    map[int64]error
	sent    []int64
	started chan int64    // optional: receives each id as its send begins
	gate    chan struct{} // optional: every send waits for a value
	ctxErrs []error
	opts    []transport.SendOptions
}

func (f *fakeSender) SendText(ctx context.Context, to transport.ChatTarget, _ string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if f.started != nil {
		f.started <- to.ChatID
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if opt != nil {
		f.opts = append(f.opts, *opt)
	}
	if err := f.fail[to.ChatID]; err != nil {
		return transport.MessageRef{}, err
	}
	f.sent = append(f.sent, to.ChatID)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) Sent() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.sent...)
}

func (f *fakeSender) Options() []transport.SendOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.SendOptions(nil), f.opts...)
}

func unreachable(id int64) error {
	return fmt.Errorf("telegram: bot was blocked by the user (%d): %w", id, transport.ErrRecipientUnreachable)
}

type fakeStore struct {
	mu          sync.Mutex
	subscribed  map[int64]bool
	markCalls   int
	listErr     error
	unsubscribe []int64
}

func newFakeStore(ids ...int64) *fakeStore {
	s := &fakeStore{subscribed: map[int64]bool{}}
	for _, id := range ids {
		s.subscribed[id] = true
	}
	return s
}

func (s *fakeStore) ListSubscribed(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := []int64{}
	for id, ok := range s.subscribed {
		if ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// add subscribes id, as a registration would.
func (s *fakeStore) add(id int64) {
	s.mu.Lock()
	s.subscribed[id] = true
	s.mu.Unlock()
}

func (s *fakeStore) MarkUnsubscribed(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markCalls++
	if !s.subscribed[id] {
		return false, nil
	}
	s.subscribed[id] = false
	s.unsubscribe = append(s.unsubscribe, id)
	return true, nil
}
