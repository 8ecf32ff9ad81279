package refresh

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler drives periodic refreshes on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	orch *Orchestrator
	spec string
}

// NewScheduler creates a scheduler for the orchestrator. The spec uses
// standard cron syntax plus descriptors like "@every 5m".
func NewScheduler(orch *Orchestrator, spec string) *Scheduler {
	if spec == "" {
		spec = "@every 5m"
	}
	return &Scheduler{
		cron: cron.New(),
		orch: orch,
		spec: spec,
	}
}

// Start registers the refresh job and begins the schedule.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.orch.Refresh(ctx); err != nil {
			slog.Error("scheduled refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	slog.Info("refresh scheduler started", "spec", s.spec)
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	slog.Info("refresh scheduler stopped")
}
