/*
ledger.go - Balance ledger: reserve, release, adjust, accrue, carry-over

PURPOSE:
  The Ledger is the single writer of Balance rows. Every mutation runs
  inside the per-key critical section and a store transaction, verifies the
  balance invariant before commit, and appends a journal Entry.

CONCURRENCY:
  The (user, leave type, year) row is the unit of contention. A per-key
  mutex serializes all operations on the same key; operations on different
  keys do not block each other. Directory lookups happen BEFORE the lock is
  taken - no outbound call ever holds a balance critical section.

SEEDING:
  A key's first touch seeds the row from the type's default entitlement and
  commits the seed in a transaction of its own (ExecSeeded). The mutation
  that triggered the seed runs in a second transaction: if it fails, only
  the mutation rolls back and the seeded row stays.

IDEMPOTENCY:
  Journal entries carry unique idempotency keys:
    reserve-<leaveID>                      one reservation per leave
    release-<leaveID>                      one credit-back per leave
    accrual-<user>-<type>-<year>-<period>  one accrual per period
    carryover-<user>-<type>-<toYear>       one carry-over per target year
  A duplicate key means the mutation was already applied. Accrue and
  CarryOver treat that as a no-op (safe re-runs after a restart); Reserve
  and Release report it, because reaching the duplicate at all means a
  state machine guard was bypassed.

SEE ALSO:
  - machine.go: couples status transitions with reserve/release in one tx
  - accrual.go: scheduled jobs driving Accrue and CarryOver
*/
package leave

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger owns all Balance mutations.
type Ledger struct {
	store     TxStore
	directory DirectoryGateway
	log       *zap.Logger
	locks     *keyLock
	now       nowFunc
}

func NewLedger(store TxStore, directory DirectoryGateway, log *zap.Logger) *Ledger {
	return &Ledger{
		store:     store,
		directory: directory,
		log:       log,
		locks:     newKeyLock(),
		now:       defaultNow,
	}
}

// =============================================================================
// CRITICAL SECTION PLUMBING
// =============================================================================

// Exec runs fn inside the per-key critical section and a store transaction.
// The state machine uses this to couple a status write with a reserve or
// release so both commit or neither does.
func (l *Ledger) Exec(ctx context.Context, key BalanceKey, fn func(tx Store) error) error {
	unlock := l.locks.lock(key)
	defer unlock()
	return l.store.WithTx(ctx, fn)
}

// ExecSeeded is Exec for mutations that may be the key's first touch. The
// seed commits in a transaction of its own before fn runs, so a mutation
// that then fails rolls back alone - the row's birth survives it.
func (l *Ledger) ExecSeeded(ctx context.Context, key BalanceKey, fn func(tx Store) error) error {
	unlock := l.locks.lock(key)
	defer unlock()
	if err := l.store.WithTx(ctx, func(tx Store) error {
		_, err := l.getOrCreateTx(ctx, tx, key)
		return err
	}); err != nil {
		return err
	}
	return l.store.WithTx(ctx, fn)
}

// =============================================================================
// GET OR CREATE - The only place a balance row is born
// =============================================================================

// GetOrCreate returns the balance row for key, lazily seeding it from the
// leave type's default entitlement. Administrative users hold no balances;
// the directory role is resolved before the critical section.
func (l *Ledger) GetOrCreate(ctx context.Context, key BalanceKey) (*Balance, error) {
	if err := l.requireNonAdmin(ctx, key.UserID); err != nil {
		return nil, err
	}

	var out *Balance
	err := l.Exec(ctx, key, func(tx Store) error {
		b, err := l.getOrCreateTx(ctx, tx, key)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// getOrCreateTx is the tx-scoped seeding path. Callers are inside the
// key's critical section and have already resolved the user's role.
func (l *Ledger) getOrCreateTx(ctx context.Context, tx Store, key BalanceKey) (*Balance, error) {
	b, err := tx.GetBalance(ctx, key)
	if err != nil {
		return nil, err
	}
	if b != nil {
		return b, nil
	}

	lt, err := tx.GetLeaveType(ctx, key.LeaveTypeID)
	if err != nil {
		return nil, err
	}
	if lt == nil {
		return nil, ErrLeaveTypeNotFound
	}

	seeded := Balance{
		UserID:          key.UserID,
		LeaveTypeID:     key.LeaveTypeID,
		Year:            key.Year,
		TotalDays:       lt.DefaultDays,
		UsedDays:        decimal.Zero,
		RemainingDays:   lt.DefaultDays,
		CarriedOverDays: decimal.Zero,
		UpdatedAt:       l.now(),
	}
	if err := seeded.CheckInvariant(); err != nil {
		return nil, err
	}
	if err := tx.SaveBalance(ctx, seeded); err != nil {
		return nil, err
	}
	entry := l.newEntry(OpSeed, key, lt.DefaultDays, "seeded from default entitlement",
		fmt.Sprintf("seed-%d-%d-%d", key.UserID, key.LeaveTypeID, key.Year), 0, nil)
	if err := tx.AppendEntry(ctx, entry); err != nil {
		return nil, err
	}

	l.log.Info("balance seeded",
		zap.Int64("user_id", key.UserID),
		zap.Int64("leave_type_id", key.LeaveTypeID),
		zap.Int("year", key.Year),
		zap.String("total_days", lt.DefaultDays.String()))
	return &seeded, nil
}

// =============================================================================
// RESERVE / RELEASE - Driven by the request lifecycle
// =============================================================================

// Reserve debits days from the remaining balance. Fails with
// InsufficientBalanceError before any mutation when days exceed the
// remaining entitlement.
func (l *Ledger) Reserve(ctx context.Context, key BalanceKey, days decimal.Decimal, leaveID string, actorID int64) error {
	return l.ExecSeeded(ctx, key, func(tx Store) error {
		return l.ReserveTx(ctx, tx, key, days, leaveID, actorID)
	})
}

// ReserveTx is the tx-scoped reserve for callers already inside ExecSeeded;
// the balance row exists by the time it runs.
func (l *Ledger) ReserveTx(ctx context.Context, tx Store, key BalanceKey, days decimal.Decimal, leaveID string, actorID int64) error {
	if !days.IsPositive() {
		return &ValidationError{Field: "days", Message: "must be positive"}
	}
	b, err := tx.GetBalance(ctx, key)
	if err != nil {
		return err
	}
	if b == nil {
		return ErrBalanceNotFound
	}
	if days.GreaterThan(b.RemainingDays) {
		return &InsufficientBalanceError{Key: key, Requested: days, Available: b.RemainingDays}
	}

	b.UsedDays = b.UsedDays.Add(days)
	b.RemainingDays = b.RemainingDays.Sub(days)
	b.UpdatedAt = l.now()
	if err := b.CheckInvariant(); err != nil {
		return err
	}
	if err := tx.SaveBalance(ctx, *b); err != nil {
		return err
	}
	entry := l.newEntry(OpReserve, key, days.Neg(), "reserved for leave "+leaveID,
		"reserve-"+leaveID, actorID, nil)
	return tx.AppendEntry(ctx, entry)
}

// Release credits days back after a rejection or cancellation. The
// release-<leaveID> idempotency key makes a second credit for the same
// leave structurally impossible even if a guard were bypassed.
func (l *Ledger) Release(ctx context.Context, key BalanceKey, days decimal.Decimal, leaveID string, actorID int64) error {
	return l.Exec(ctx, key, func(tx Store) error {
		return l.ReleaseTx(ctx, tx, key, days, leaveID, actorID)
	})
}

// ReleaseTx is the tx-scoped release for callers already inside Exec.
func (l *Ledger) ReleaseTx(ctx context.Context, tx Store, key BalanceKey, days decimal.Decimal, leaveID string, actorID int64) error {
	if !days.IsPositive() {
		return &ValidationError{Field: "days", Message: "must be positive"}
	}
	b, err := tx.GetBalance(ctx, key)
	if err != nil {
		return err
	}
	if b == nil {
		return ErrBalanceNotFound
	}
	if days.GreaterThan(b.UsedDays) {
		return &InvariantError{Key: key, Message: fmt.Sprintf("release of %s exceeds used %s", days, b.UsedDays)}
	}

	b.UsedDays = b.UsedDays.Sub(days)
	b.RemainingDays = b.RemainingDays.Add(days)
	b.UpdatedAt = l.now()
	if err := b.CheckInvariant(); err != nil {
		return err
	}
	if err := tx.SaveBalance(ctx, *b); err != nil {
		return err
	}
	entry := l.newEntry(OpRelease, key, days, "released for leave "+leaveID,
		"release-"+leaveID, actorID, nil)
	return tx.AppendEntry(ctx, entry)
}

// =============================================================================
// ADJUST - Administrative correction with mandatory reason
// =============================================================================

// Adjust adds deltaDays (possibly negative) to both total and remaining
// days. Forbidden when the target user is an administrator.
func (l *Ledger) Adjust(ctx context.Context, key BalanceKey, deltaDays decimal.Decimal, reason string, actorID int64) (*Balance, error) {
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "adjustment reason is required"}
	}
	if err := l.requireNonAdmin(ctx, key.UserID); err != nil {
		return nil, err
	}

	var out *Balance
	err := l.ExecSeeded(ctx, key, func(tx Store) error {
		b, err := tx.GetBalance(ctx, key)
		if err != nil {
			return err
		}
		if b == nil {
			return ErrBalanceNotFound
		}
		newTotal := b.TotalDays.Add(deltaDays)
		newRemaining := b.RemainingDays.Add(deltaDays)
		if newTotal.IsNegative() || newRemaining.IsNegative() {
			return &ValidationError{Field: "deltaDays", Message: "adjustment would make the balance negative"}
		}

		b.TotalDays = newTotal
		b.RemainingDays = newRemaining
		b.UpdatedAt = l.now()
		if err := b.CheckInvariant(); err != nil {
			return err
		}
		if err := tx.SaveBalance(ctx, *b); err != nil {
			return err
		}
		entry := l.newEntry(OpAdjust, key, deltaDays, reason, "", actorID, nil)
		entry.IdempotencyKey = "adjust-" + entry.ID
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("balance adjusted",
		zap.Int64("user_id", key.UserID),
		zap.Int64("leave_type_id", key.LeaveTypeID),
		zap.Int("year", key.Year),
		zap.String("delta_days", deltaDays.String()),
		zap.String("reason", reason),
		zap.Int64("actor_id", actorID))
	return out, nil
}

// =============================================================================
// ACCRUE - Periodic entitlement earning (scheduler only)
// =============================================================================

// Accrue adds rate to total and remaining days exactly once per period.
// period is an opaque key such as "2026-08"; re-running the job for a
// period that was already applied is a no-op and returns applied=false.
func (l *Ledger) Accrue(ctx context.Context, key BalanceKey, rate decimal.Decimal, period string) (applied bool, err error) {
	if !rate.IsPositive() {
		return false, &ValidationError{Field: "rate", Message: "must be positive"}
	}
	idem := fmt.Sprintf("accrual-%d-%d-%d-%s", key.UserID, key.LeaveTypeID, key.Year, period)

	err = l.ExecSeeded(ctx, key, func(tx Store) error {
		exists, err := tx.EntryExists(ctx, idem)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		b, err := tx.GetBalance(ctx, key)
		if err != nil {
			return err
		}
		if b == nil {
			return ErrBalanceNotFound
		}

		b.TotalDays = b.TotalDays.Add(rate)
		b.RemainingDays = b.RemainingDays.Add(rate)
		b.UpdatedAt = l.now()
		if err := b.CheckInvariant(); err != nil {
			return err
		}
		if err := tx.SaveBalance(ctx, *b); err != nil {
			return err
		}
		entry := l.newEntry(OpAccrue, key, rate, "monthly accrual "+period, idem, 0,
			map[string]string{"period": period})
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// =============================================================================
// CARRY-OVER - Annual transfer of capped unused days
// =============================================================================

// CarryOver moves min(remaining(fromYear), cap) into the toYear balance,
// crediting carried-over, total, and remaining days. The fromYear row is
// left untouched; days beyond the cap are forfeited and recorded in the
// journal entry so the loss stays auditable. Applied at most once per
// (user, type, toYear); re-runs return applied=false.
func (l *Ledger) CarryOver(ctx context.Context, userID, leaveTypeID int64, fromYear, toYear int, cap decimal.Decimal, actorID int64) (carried decimal.Decimal, applied bool, err error) {
	if toYear <= fromYear {
		return decimal.Zero, false, &ValidationError{Field: "toYear", Message: "must be after fromYear"}
	}

	fromKey := BalanceKey{UserID: userID, LeaveTypeID: leaveTypeID, Year: fromYear}
	toKey := BalanceKey{UserID: userID, LeaveTypeID: leaveTypeID, Year: toYear}
	idem := fmt.Sprintf("carryover-%d-%d-%d", userID, leaveTypeID, toYear)

	// Lock both rows, from-year first. The ordering is fixed (fromYear <
	// toYear) so concurrent carry-overs cannot deadlock.
	unlockFrom := l.locks.lock(fromKey)
	defer unlockFrom()
	unlockTo := l.locks.lock(toKey)
	defer unlockTo()

	err = l.store.WithTx(ctx, func(tx Store) error {
		exists, err := tx.EntryExists(ctx, idem)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		from, err := tx.GetBalance(ctx, fromKey)
		if err != nil {
			return err
		}
		if from == nil {
			// Nothing accrued in the prior year; nothing to carry.
			return nil
		}

		carry := decimal.Min(from.RemainingDays, cap)
		if carry.IsNegative() {
			carry = decimal.Zero
		}
		forfeited := from.RemainingDays.Sub(carry)

		to, err := l.getOrCreateTx(ctx, tx, toKey)
		if err != nil {
			return err
		}
		to.CarriedOverDays = to.CarriedOverDays.Add(carry)
		to.TotalDays = to.TotalDays.Add(carry)
		to.RemainingDays = to.RemainingDays.Add(carry)
		to.UpdatedAt = l.now()
		if err := to.CheckInvariant(); err != nil {
			return err
		}
		if err := tx.SaveBalance(ctx, *to); err != nil {
			return err
		}
		entry := l.newEntry(OpCarryOver, toKey, carry,
			fmt.Sprintf("carried over from %d", fromYear), idem, actorID,
			map[string]string{
				"from_year": fmt.Sprintf("%d", fromYear),
				"forfeited": forfeited.String(),
			})
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}

		if forfeited.IsPositive() {
			l.log.Info("carry-over forfeited days",
				zap.Int64("user_id", userID),
				zap.Int64("leave_type_id", leaveTypeID),
				zap.Int("from_year", fromYear),
				zap.String("forfeited_days", forfeited.String()))
		}
		carried = carry
		applied = true
		return nil
	})
	return carried, applied, err
}

// =============================================================================
// HELPERS
// =============================================================================

// requireNonAdmin resolves the target's directory role before any lock is
// taken. Admins hold no leave balances.
func (l *Ledger) requireNonAdmin(ctx context.Context, userID int64) error {
	u, err := l.directory.User(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return &ValidationError{Field: "userId", Message: fmt.Sprintf("unknown user %d", userID)}
	}
	if u.Role.Administrative() {
		return ErrForbiddenForRole
	}
	return nil
}

func (l *Ledger) newEntry(op EntryOp, key BalanceKey, delta decimal.Decimal, reason, idem string, actorID int64, meta map[string]string) Entry {
	return Entry{
		ID:             uuid.NewString(),
		Op:             op,
		UserID:         key.UserID,
		LeaveTypeID:    key.LeaveTypeID,
		Year:           key.Year,
		Delta:          delta,
		Reason:         reason,
		IdempotencyKey: idem,
		ActorID:        actorID,
		Metadata:       meta,
		CreatedAt:      l.now(),
	}
}
