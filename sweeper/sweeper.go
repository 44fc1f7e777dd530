// Package sweeper drives the periodic maintenance loops: health sweeps
// that reclaim work from dead agents, dispatch passes that pick up
// queued and retrying jobs, and delivery of pending DLQ alerts. The
// subsystems themselves are not self-scheduling; this package owns the
// cadence.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/muhammadiwa/youtube-automation-sub005/engine"
)

// dispatchBatchSize bounds how many queued jobs one pass examines.
const dispatchBatchSize = 100

// Sweeper schedules the engine's periodic work.
type Sweeper struct {
	eng    *engine.Engine
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a Sweeper over the engine.
func New(eng *engine.Engine, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		eng:    eng,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start registers the maintenance jobs and starts the scheduler.
func (s *Sweeper) Start() error {
	cfg := s.eng.Config()

	schedules := []struct {
		name     string
		interval time.Duration
		run      func(ctx context.Context)
	}{
		{"health_sweep", cfg.SweepInterval, s.runHealthSweep},
		{"dispatch_sweep", cfg.SweepInterval, s.runDispatchSweep},
		{"alert_sweep", cfg.AlertSweepInterval, s.runAlertSweep},
	}

	for _, sched := range schedules {
		sched := sched
		spec := fmt.Sprintf("@every %s", sched.interval)
		if _, err := s.cron.AddFunc(spec, func() {
			sched.run(context.Background())
		}); err != nil {
			return fmt.Errorf("sweeper: schedule %s: %w", sched.name, err)
		}
		s.logger.Info("sweep scheduled",
			slog.String("name", sched.name),
			slog.Duration("interval", sched.interval),
		)
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for in-flight sweeps to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sweeper: stop: %w", ctx.Err())
	}
}

// RunAll executes every sweep once, immediately. Exposed for operator
// tooling and tests.
func (s *Sweeper) RunAll(ctx context.Context) {
	s.runHealthSweep(ctx)
	s.runDispatchSweep(ctx)
	s.runAlertSweep(ctx)
}

func (s *Sweeper) runHealthSweep(ctx context.Context) {
	summary, err := s.eng.Health().Sweep(ctx)
	if err != nil {
		s.logger.Error("health sweep failed", slog.String("error", err.Error()))
		return
	}
	if len(summary.NewlyUnhealthy) > 0 {
		s.logger.Warn("health sweep flagged agents",
			slog.Int("newly_unhealthy", len(summary.NewlyUnhealthy)),
			slog.Int("jobs_reassigned", summary.JobsReassignedTotal),
		)
	}
}

func (s *Sweeper) runDispatchSweep(ctx context.Context) {
	n, err := s.eng.Dispatcher().DispatchQueued(ctx, dispatchBatchSize)
	if err != nil {
		s.logger.Error("dispatch sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.Info("dispatch sweep assigned jobs", slog.Int("dispatched", n))
	}
}

func (s *Sweeper) runAlertSweep(ctx context.Context) {
	delivered, err := s.eng.DLQ().ProcessPendingAlerts(ctx)
	if err != nil {
		s.logger.Error("alert sweep failed", slog.String("error", err.Error()))
		return
	}
	if delivered > 0 {
		s.logger.Info("alert sweep delivered notifications", slog.Int("delivered", delivered))
	}
}
