package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"castbot/pkg/logx"
)

func TestHousekeeperRunsSweepers(t *testing.T) {
	t.Parallel()
	var a, b atomic.Int32
	h, err := newHousekeeper("@every 1s", logx.Nop(),
		sweeper{name: "a", fn: func() int { a.Add(1); return 1 }},
		sweeper{name: "b", fn: func() int { b.Add(1); return 0 }},
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	h.sweep()
	if a.Load() != 1 || b.Load() != 1 {
		t.Fatalf("sweepers ran a=%d b=%d", a.Load(), b.Load())
	}

	h.Start()
	deadline := time.Now().Add(3 * time.Second)
	for a.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if a.Load() < 2 {
		t.Fatal("scheduled sweep never ran")
	}
}

func TestHousekeeperRejectsBadSpec(t *testing.T) {
	t.Parallel()
	if _, err := newHousekeeper("every minute", logx.Nop()); err == nil {
		t.Fatal("want error for bad spec")
	}
}
