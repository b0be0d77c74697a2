// Package scheduler drives the periodic entry points: status
// reconciliation, escalation sweeps and the failover prober. Each job
// runs on its own ticker as an independent, stateless invocation.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one periodically triggered invocation.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs registered jobs on fixed intervals.
type Scheduler struct {
	jobs []Job

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a scheduler for the given jobs.
func New(jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:   jobs,
		stopCh: make(chan struct{}),
	}
}

// Start launches one goroutine per job. Every job runs once immediately,
// then on every tick.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.run(ctx, job)
	}

	slog.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop gracefully stops all job loops. In-flight invocations finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	defer s.wg.Done()

	s.invoke(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.invoke(ctx, job)
		}
	}
}

func (s *Scheduler) invoke(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		slog.Error("scheduled job failed",
			"job", job.Name,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return
	}
	slog.Debug("scheduled job completed",
		"job", job.Name,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
