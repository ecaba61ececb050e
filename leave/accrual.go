/*
accrual.go - Scheduled accrual and year-end carry-over

PURPOSE:
  The two time-driven jobs. RunMonthlyAccrual credits each eligible
  balance with its type's accrual rate once per calendar month;
  RunCarryOver moves capped unused days into the new year once per
  (user, type, target year). Both lean entirely on the journal's
  idempotency keys, so a crashed or double-fired run is safe to repeat.

FAILURE POLICY:
  One bad (user, type) pair never aborts the sweep. Errors are collected
  and joined; the job reports how many credits it actually applied.
  Admins get a summary notification after each run.

SEE ALSO:
  - ledger.go:       Accrue and CarryOver
  - api/scheduler.go: cron wiring that fires these jobs
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// AccrualJob drives the periodic balance credits.
type AccrualJob struct {
	ledger    *Ledger
	catalog   *Catalog
	directory DirectoryGateway
	notify    NotificationSink
	log       *zap.Logger
}

func NewAccrualJob(ledger *Ledger, catalog *Catalog, directory DirectoryGateway, notify NotificationSink, log *zap.Logger) *AccrualJob {
	return &AccrualJob{
		ledger:    ledger,
		catalog:   catalog,
		directory: directory,
		notify:    notify,
		log:       log,
	}
}

// RunMonthlyAccrual credits every (user, accruing type) balance for the
// month containing now. Applied at most once per month per balance;
// re-running within the same month is a no-op.
func (j *AccrualJob) RunMonthlyAccrual(ctx context.Context, now time.Time) (applied int, err error) {
	period := now.UTC().Format("2006-01")
	year := now.UTC().Year()

	users, err := j.eligibleUsers(ctx)
	if err != nil {
		return 0, err
	}
	types, err := j.catalog.List(ctx, true)
	if err != nil {
		return 0, err
	}

	var errs []error
	for _, t := range types {
		if !t.AccrualRate.IsPositive() {
			continue
		}
		for _, u := range users {
			key := BalanceKey{UserID: u.ID, LeaveTypeID: t.ID, Year: year}
			ok, err := j.ledger.Accrue(ctx, key, t.AccrualRate, period)
			if err != nil {
				errs = append(errs, fmt.Errorf("accrue %s: %w", key, err))
				continue
			}
			if ok {
				applied++
			}
		}
	}

	j.log.Info("monthly accrual run finished",
		zap.String("period", period),
		zap.Int("applied", applied),
		zap.Int("failed", len(errs)))
	j.notifyAdmins(ctx, Event{
		Kind:    EventAccrualCompleted,
		Message: fmt.Sprintf("monthly accrual for %s applied %d credits (%d failures)", period, applied, len(errs)),
		At:      now,
	})
	return applied, errors.Join(errs...)
}

// RunCarryOver transfers capped unused days from the previous year into
// the year containing now, for every type that allows carry-over. Applied
// at most once per (user, type, target year).
func (j *AccrualJob) RunCarryOver(ctx context.Context, now time.Time) (applied int, err error) {
	toYear := now.UTC().Year()
	fromYear := toYear - 1

	users, err := j.eligibleUsers(ctx)
	if err != nil {
		return 0, err
	}
	types, err := j.catalog.List(ctx, true)
	if err != nil {
		return 0, err
	}

	var errs []error
	for _, t := range types {
		if !t.CarryOverAllowed {
			continue
		}
		for _, u := range users {
			_, ok, err := j.ledger.CarryOver(ctx, u.ID, t.ID, fromYear, toYear, t.MaxCarryOverDays, 0)
			if err != nil {
				errs = append(errs, fmt.Errorf("carry over user %d type %d: %w", u.ID, t.ID, err))
				continue
			}
			if ok {
				applied++
			}
		}
	}

	j.log.Info("carry-over run finished",
		zap.Int("from_year", fromYear),
		zap.Int("to_year", toYear),
		zap.Int("applied", applied),
		zap.Int("failed", len(errs)))
	j.notifyAdmins(ctx, Event{
		Kind:    EventCarryOverCompleted,
		Message: fmt.Sprintf("carry-over %d -> %d applied to %d balances (%d failures)", fromYear, toYear, applied, len(errs)),
		At:      now,
	})
	return applied, errors.Join(errs...)
}

// eligibleUsers returns everyone who holds balances: staff and managers.
func (j *AccrualJob) eligibleUsers(ctx context.Context) ([]User, error) {
	var users []User
	for _, role := range []Role{RoleStaff, RoleManager} {
		batch, err := j.directory.UsersByRole(ctx, role)
		if err != nil {
			return nil, err
		}
		users = append(users, batch...)
	}
	return users, nil
}

func (j *AccrualJob) notifyAdmins(ctx context.Context, event Event) {
	if j.notify == nil {
		return
	}
	admins, err := j.directory.UsersByRole(ctx, RoleAdmin)
	if err != nil {
		j.log.Warn("could not resolve admin recipients", zap.Error(err))
		return
	}
	for _, a := range admins {
		event.Recipients = append(event.Recipients, a.ID)
	}
	if err := j.notify.Notify(ctx, event); err != nil {
		j.log.Warn("job notification failed", zap.String("kind", string(event.Kind)), zap.Error(err))
	}
}
