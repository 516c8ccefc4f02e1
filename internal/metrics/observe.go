package metrics

import (
	"context"

	"castbot/internal/eventbus"
)

// Observe counts broadcast events from bus until ctx is done. It returns
// once the subscription is closed.
func Observe(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			record(e)
		}
	}
}

func record(e eventbus.Event) {
	switch e.Type {
	case eventbus.BroadcastStarted:
		BroadcastInflight.Set(1)
	case eventbus.BroadcastFinished:
		d, ok := e.Data.(eventbus.JobFinished)
		if !ok {
			return
		}
		BroadcastJobs.WithLabelValues(d.Result).Inc()
		// Rejected submissions (empty, busy) carry no job.
		if d.JobID == "" {
			return
		}
		BroadcastInflight.Set(0)
		BroadcastDeliveries.WithLabelValues("delivered").Add(float64(d.Delivered))
		BroadcastDeliveries.WithLabelValues("unreachable").Add(float64(d.Unreachable))
		BroadcastDeliveries.WithLabelValues("transient").Add(float64(d.Transient))
		BroadcastDeliveries.WithLabelValues("skipped").Add(float64(d.Skipped))
	case eventbus.SubscriberUnsubscribe:
		Unsubscribes.Inc()
	}
}
