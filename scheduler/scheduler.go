// Package scheduler repeats a job on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-laptops/job"
)

// Runner executes one run of the job.
type Runner interface {
	Run(ctx context.Context) (*job.Report, error)
}

// Scheduler runs the job immediately and then on every tick.
type Scheduler struct {
	runner   Runner
	interval time.Duration

	// OnRun, when set, observes each finished run.
	OnRun func(report *job.Report, err error)
}

// New returns a scheduler; interval must be positive.
func New(runner Runner, interval time.Duration) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	return &Scheduler{runner: runner, interval: interval}, nil
}

// Run blocks until ctx is cancelled. Runs execute on this goroutine, so a
// slow run delays the next tick instead of overlapping with it.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := s.runner.Run(ctx)
	switch {
	case err == nil:
		slog.Info("scheduled run succeeded", slog.Int("rows", report.Rows()))
	case errors.Is(err, context.Canceled):
		slog.Info("scheduled run interrupted")
	default:
		slog.Error("scheduled run failed", slog.Any("error", err), slog.Time("next", time.Now().Add(s.interval)))
	}
	if s.OnRun != nil {
		s.OnRun(report, err)
	}
}
