package worker

import (
	"context"
	"log/slog"
	"time"
)

// Periodic runs a task on a fixed interval until its context ends.
type Periodic struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
	logger   *slog.Logger
}

// NewPeriodic creates a periodic worker. An interval <= 0 disables it.
func NewPeriodic(name string, interval time.Duration, task func(ctx context.Context) error, logger *slog.Logger) *Periodic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Periodic{name: name, interval: interval, task: task, logger: logger}
}

// Start runs the loop. The task runs once immediately.
func (p *Periodic) Start(ctx context.Context) {
	if p.interval <= 0 {
		return // disabled
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

func (p *Periodic) run(ctx context.Context) {
	start := time.Now()
	if err := p.task(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("Scheduled job failed", "job", p.name, "error", err)
		return
	}
	p.logger.Debug("Scheduled job finished", "job", p.name, "duration", time.Since(start))
}
