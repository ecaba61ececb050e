/*
scheduler.go - Cron wiring for the accrual and carry-over jobs

PURPOSE:
  Fires leave.AccrualJob on the configured cron schedules. The jobs
  themselves are idempotent per period, so an extra firing (restart,
  overlapping deploys, manual trigger) never double-credits anyone.

DEFAULT SCHEDULES:
  accrual:    "0 2 1 * *"  first day of each month, 02:00
  carry-over: "0 3 1 1 *"  January 1st, 03:00

SEE ALSO:
  - leave/accrual.go: the jobs being fired
  - api/handlers.go:  RunAccrual / RunCarryOver manual triggers
*/
package api

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/daking/leave-engine/leave"
)

// Scheduler runs the periodic balance jobs.
type Scheduler struct {
	job  *leave.AccrualJob
	cron *cron.Cron
	log  *zap.Logger

	accrualSpec   string
	carryOverSpec string
}

func NewScheduler(job *leave.AccrualJob, accrualSpec, carryOverSpec string, log *zap.Logger) *Scheduler {
	return &Scheduler{
		job:           job,
		cron:          cron.New(),
		log:           log,
		accrualSpec:   accrualSpec,
		carryOverSpec: carryOverSpec,
	}
}

// Start registers the cron entries and launches the scheduler goroutine.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.accrualSpec, func() {
		if _, err := s.job.RunMonthlyAccrual(context.Background(), time.Now()); err != nil {
			s.log.Error("scheduled accrual run had failures", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.carryOverSpec, func() {
		if _, err := s.job.RunCarryOver(context.Background(), time.Now()); err != nil {
			s.log.Error("scheduled carry-over run had failures", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("scheduler started",
		zap.String("accrual_spec", s.accrualSpec),
		zap.String("carryover_spec", s.carryOverSpec))
	return nil
}

// Stop halts the scheduler and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}
