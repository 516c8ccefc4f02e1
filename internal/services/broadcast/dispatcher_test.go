package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"castbot/internal/eventbus"
	"castbot/pkg/logx"
)

func newTestDispatcher(sender *fakeSender, store *fakeStore, workers int) *Dispatcher {
	return NewDispatcher(DispatcherConfig{RatePerSec: 1000, Burst: 1, Workers: workers, SendTimeout: time.Second},
		sender, store, nil, logx.Nop())
}

func TestDispatchUnreachableIsUnsubscribed(t *testing.T) {
	t.Parallel()
	const a, b, c = 1, 2, 3
	store := newFakeStore(a, b, c)
	sender := &fakeSender{fail: map[int64]error{b: unreachable(b)}}
	d := newTestDispatcher(sender, store, 1)

	targets, _ := store.ListSubscribed(context.Background())
	res, err := d.Dispatch(context.Background(), "hello", targets)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	want := map[int64]Outcome{a: Delivered, b: Unreachable, c: Delivered}
	for id, o := range want {
		if res.Outcomes[id] != o {
			t.Errorf("outcome[%d]=%v want %v", id, res.Outcomes[id], o)
		}
	}
	left, _ := store.ListSubscribed(context.Background())
	if len(left) != 2 || left[0] != a || left[1] != c {
		t.Fatalf("subscribed after dispatch=%v", left)
	}
	if got := sender.Sent(); len(got) != 2 || got[0] != a || got[1] != c {
		t.Fatalf("sent=%v, want in snapshot order", got)
	}
}

func TestDispatchEmptySnapshot(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	sender := &fakeSender{}
	d := newTestDispatcher(sender, store, 2)

	res, err := d.Dispatch(context.Background(), "hello", nil)
	if !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("want ErrNoRecipients, got %v", err)
	}
	if res.Total() != 0 || len(sender.Sent()) != 0 || store.markCalls != 0 {
		t.Fatalf("empty dispatch must be a no-op: res=%+v sent=%v marks=%d", res, sender.Sent(), store.markCalls)
	}
}

func TestDispatchTransientKeepsSubscription(t *testing.T) {
	t.Parallel()
	store := newFakeStore(10, 20)
	sender := &fakeSender{fail: map[int64]error{10: errFlood}}
	d := newTestDispatcher(sender, store, 2)

	res, err := d.Dispatch(context.Background(), "hi", []int64{10, 20})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcomes[10] != Transient || res.Transient != 1 || res.Delivered != 1 {
		t.Fatalf("res=%+v", res)
	}
	if store.markCalls != 0 {
		t.Fatalf("transient failure must not unsubscribe")
	}
}

func TestDispatchCountsAddUp(t *testing.T) {
	t.Parallel()
	const n = 60
	var targets []int64
	fail := map[int64]error{}
	wantGone := map[int64]bool{}
	for i := int64(1); i <= n; i++ {
		targets = append(targets, i)
		switch {
		case i%7 == 0:
			fail[i] = unreachable(i)
			wantGone[i] = true
		case i%5 == 0:
			fail[i] = errFlood
		}
	}
	store := newFakeStore(targets...)
	sender := &fakeSender{fail: fail}
	d := newTestDispatcher(sender, store, 4)

	res, err := d.Dispatch(context.Background(), "x", targets)
	if err != nil {
		t.Fatal(err)
	}
	if res.Delivered+res.Unreachable+res.Transient != n || res.Skipped != 0 {
		t.Fatalf("counts do not add up: %+v", res)
	}
	if res.Unreachable != len(wantGone) {
		t.Fatalf("unreachable=%d want %d", res.Unreachable, len(wantGone))
	}
	left, _ := store.ListSubscribed(context.Background())
	if len(left) != n-len(wantGone) {
		t.Fatalf("left=%d want %d", len(left), n-len(wantGone))
	}
	for _, id := range left {
		if wantGone[id] {
			t.Fatalf("%d should have been unsubscribed", id)
		}
	}
}

func TestDispatchCancelStopsNewSends(t *testing.T) {
	t.Parallel()
	store := newFakeStore(1, 2, 3, 4)
	sender := &fakeSender{started: make(chan int64, 4), gate: make(chan struct{})}
	d := newTestDispatcher(sender, store, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() {
		res, _ := d.Dispatch(ctx, "x", []int64{1, 2, 3, 4})
		done <- res
	}()

	if id := <-sender.started; id != 1 {
		t.Fatalf("first send went to %d", id)
	}
	cancel()
	close(sender.gate)

	select {
	case res := <-done:
		if res.Outcomes[1] != Delivered || res.Skipped != 3 {
			t.Fatalf("res=%+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not return after cancel")
	}
	for _, err := range sender.ctxErrs {
		if err != nil {
			t.Fatalf("issued send saw a cancelled context: %v", err)
		}
	}
}

func TestDispatchPublishesUnsubscribe(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	store := newFakeStore(5)
	sender := &fakeSender{fail: map[int64]error{5: unreachable(5)}}
	d := NewDispatcher(DispatcherConfig{RatePerSec: 1000, Workers: 1}, sender, store, bus, logx.Nop())
	if _, err := d.Dispatch(context.Background(), "x", []int64{5}, WithJobID("job-1")); err != nil {
		t.Fatal(err)
	}
	select {
	case e := <-ch:
		u, ok := e.Data.(eventbus.Unsubscribed)
		if e.Type != eventbus.SubscriberUnsubscribe || !ok || u.ChatID != 5 || u.JobID != "job-1" {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no unsubscribe event")
	}
}

func TestDispatchSendsHTML(t *testing.T) {
	t.Parallel()
	store := newFakeStore(1, 2)
	sender := &fakeSender{}
	d := newTestDispatcher(sender, store, 2)

	if _, err := d.Dispatch(context.Background(), "<b>hi</b>", []int64{1, 2}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	opts := sender.Options()
	if len(opts) != 2 {
		t.Fatalf("sends=%d, want 2", len(opts))
	}
	for i, o := range opts {
		if o.ParseMode != TextParseMode || !o.DisablePreview {
			t.Fatalf("send %d options=%+v, want HTML without preview", i, o)
		}
	}
}
