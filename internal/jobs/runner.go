// Package jobs runs the periodic background work of the checkout service.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job is one unit of periodic work. A failed tick is logged and the job
// runs again at the next interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Runner struct {
	jobs []Job
}

func NewRunner(jobs ...Job) *Runner {
	return &Runner{jobs: jobs}
}

// Start blocks until ctx is cancelled. Every job runs on its own goroutine.
func (r *Runner) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range r.jobs {
		if job.Interval <= 0 {
			slog.Warn("job disabled", "job", job.Name)
			continue
		}
		g.Go(func() error {
			return loop(ctx, job)
		})
	}
	return g.Wait()
}

func loop(ctx context.Context, job Job) error {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	slog.Info("job started", "job", job.Name, "interval", job.Interval.String())

	for {
		select {
		case <-ctx.Done():
			slog.Info("job stopped", "job", job.Name)
			return nil
		case <-ticker.C:
			tick(ctx, job)
		}
	}
}

func tick(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job panicked", "job", job.Name, "panic", r)
		}
	}()
	if err := job.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("job failed", "job", job.Name, "error", err.Error())
	}
}
