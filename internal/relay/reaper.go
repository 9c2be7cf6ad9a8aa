package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/akkhan00/m5Chat/internal/metrics"
	"github.com/akkhan00/m5Chat/internal/store"
)

// DefaultReapInterval is how often expired messages are swept.
const DefaultReapInterval = 60 * time.Second

// Reaper deletes expired messages on a fixed interval and tells affected
// rooms what vanished. Runs are serialized by construction: a single loop
// goroutine, and a sweep that overruns the interval simply delays the next
// tick.
type Reaper struct {
	store    store.Store
	reg      *Registry
	interval time.Duration
	now      func() time.Time
}

func NewReaper(st store.Store, reg *Registry, interval time.Duration, now func() time.Time) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Reaper{store: st, reg: reg, interval: interval, now: now}
}

// Run blocks until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

// runOnce performs a single sweep. A storage failure is logged and retried
// on the next cycle, never fatal.
func (r *Reaper) runOnce(ctx context.Context) {
	reaped, err := r.store.ReapExpired(ctx, r.now())
	if err != nil {
		slog.Error("reaper: reap expired", slog.Any("err", err))
		metrics.ReaperRuns.WithLabelValues("error").Inc()
		return
	}
	metrics.ReaperRuns.WithLabelValues("ok").Inc()
	if len(reaped) == 0 {
		return
	}

	metrics.MessagesReaped.Add(float64(len(reaped)))

	byRoom := make(map[string][]string)
	for _, rm := range reaped {
		byRoom[rm.Room] = append(byRoom[rm.Room], rm.ID)
	}
	// Best-effort notify; clients also stop seeing expired rows on their
	// next history fetch.
	for room, ids := range byRoom {
		r.reg.Broadcast(room, Event{
			Type:    EventMessagesExpired,
			Payload: ExpiredPayload{Room: room, MessageIDs: ids},
		})
	}

	slog.Debug("reaper: purged expired messages", "count", len(reaped), "rooms", len(byRoom))
}
