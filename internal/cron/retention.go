package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// DefaultPruneSchedule runs the pruner once a day at 03:00.
const DefaultPruneSchedule = "0 3 * * *"

// PruneFunc deletes history older than cutoff and reports how many rows went.
type PruneFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// Pruner periodically removes finished-pairing history older than the
// retention window, on a 5-field cron schedule.
type Pruner struct {
	expr      string
	retention time.Duration
	prune     PruneFunc
	retry     RetryConfig
	now       func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun time.Time
}

// NewPruner validates expr and returns a stopped pruner.
func NewPruner(expr string, retention time.Duration, prune PruneFunc) (*Pruner, error) {
	if expr == "" {
		expr = DefaultPruneSchedule
	}
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression: %s", expr)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	return &Pruner{
		expr:      expr,
		retention: retention,
		prune:     prune,
		retry:     DefaultRetryConfig(),
		now:       time.Now,
	}, nil
}

// NextRun returns the first scheduled run strictly after t.
func (p *Pruner) NextRun(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(p.expr, t, false)
}

// RunOnce prunes everything older than now - retention.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	n, attempts, err := ExecuteWithRetry(ctx, func(ctx context.Context) (int64, error) {
		return p.prune(ctx, cutoff)
	}, p.retry)

	p.mu.Lock()
	p.lastRun = p.now()
	p.mu.Unlock()

	if err != nil {
		slog.Error("history prune failed", "cutoff", cutoff, "attempts", attempts, "error", err)
		return 0, err
	}
	slog.Info("history pruned", "removed", n, "cutoff", cutoff)
	return n, nil
}

// LastRun returns when RunOnce last finished, zero if never.
func (p *Pruner) LastRun() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRun
}

// Start runs the pruner in the background until Stop or ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
	slog.Info("history pruner started", "schedule", p.expr, "retention", p.retention)
}

// Stop halts the background loop and waits for it to exit.
func (p *Pruner) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("history pruner stopped")
}

func (p *Pruner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		next, err := p.NextRun(p.now())
		if err != nil {
			slog.Error("history pruner: failed to compute next run", "expr", p.expr, "error", err)
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			p.RunOnce(ctx)
		}
	}
}
