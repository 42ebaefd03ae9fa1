// Package scheduler runs the periodic overdue sweep that keeps escalation
// levels current without an explicit API call.
package scheduler

import (
	"fmt"

	"github.com/mantleflow/risk-service/internal/config"
	"github.com/mantleflow/risk-service/internal/service"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler owns the cron instance driving the escalation sweep
type Scheduler struct {
	cron *cron.Cron
	svc  *service.Service
	log  *logrus.Logger
}

// New creates a scheduler with the sweep registered at the configured
// cron schedule
func New(svc *service.Service, cfg *config.Config, log *logrus.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(),
		svc:  svc,
		log:  log,
	}

	_, err := s.cron.AddFunc(cfg.SweepSchedule, func() {
		if err := svc.SweepEscalations(); err != nil {
			log.Errorf("Escalation sweep failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule escalation sweep: %w", err)
	}

	return s, nil
}

// Start begins running scheduled jobs in their own goroutines
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Escalation sweep scheduler started")
}

// Stop halts the scheduler, waiting for a running sweep to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Escalation sweep scheduler stopped")
}
