/*
machine.go - Leave request state machine

PURPOSE:
  The Service drives the request lifecycle and is the only component that
  couples a status write with a ledger movement:

    apply    PENDING (or APPROVED when no approval required), days reserved
    approve  PENDING -> APPROVED, reservation stays in place
    reject   PENDING -> REJECTED, days released
    cancel   PENDING|APPROVED -> CANCELLED, days released

TRANSITION DISCIPLINE:
  Every transition re-reads the leave inside the balance row's critical
  section before the guard runs. Two racing decisions therefore serialize:
  the second one sees the terminal status and fails the guard instead of
  releasing twice. The release-<leaveID> journal key backs this up at the
  storage layer.

ORDERING:
  Directory lookups and authorization happen before the critical section;
  notifications are emitted after commit and are best-effort.

SEE ALSO:
  - ledger.go: ReserveTx/ReleaseTx used inside the coupled transactions
  - authz.go:  CanDecide / DecisionScope
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service exposes the leave request operations.
type Service struct {
	store     TxStore
	ledger    *Ledger
	catalog   *Catalog
	resolver  *Resolver
	directory DirectoryGateway
	notify    NotificationSink
	documents DocumentService
	log       *zap.Logger
	now       nowFunc
}

// ServiceDeps bundles the collaborators of a Service. Documents may be nil
// when no document service is deployed.
type ServiceDeps struct {
	Store     TxStore
	Ledger    *Ledger
	Catalog   *Catalog
	Resolver  *Resolver
	Directory DirectoryGateway
	Notify    NotificationSink
	Documents DocumentService
	Log       *zap.Logger
}

func NewService(d ServiceDeps) *Service {
	return &Service{
		store:     d.Store,
		ledger:    d.Ledger,
		catalog:   d.Catalog,
		resolver:  d.Resolver,
		directory: d.Directory,
		notify:    d.Notify,
		documents: d.Documents,
		log:       d.Log,
		now:       defaultNow,
	}
}

// ApplyRequest carries the inputs of a new leave application.
type ApplyRequest struct {
	UserID      int64
	LeaveTypeID int64
	StartDate   time.Time
	EndDate     time.Time
	Reason      string
	DocumentIDs []int64
}

// =============================================================================
// APPLY
// =============================================================================

// Apply files a new leave request and reserves its days in the same
// transaction. Types that require no approval are approved immediately.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (*Leave, error) {
	applicant, err := s.directory.User(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if applicant == nil {
		return nil, &ValidationError{Field: "userId", Message: fmt.Sprintf("unknown user %d", req.UserID)}
	}
	if applicant.Role.Administrative() {
		return nil, ErrForbiddenForRole
	}

	start := truncateDay(req.StartDate)
	end := truncateDay(req.EndDate)
	if start.IsZero() || end.IsZero() {
		return nil, &ValidationError{Field: "startDate", Message: "start and end dates are required"}
	}
	if end.Before(start) {
		return nil, &ValidationError{Field: "endDate", Message: "must not be before start date"}
	}
	if start.Before(truncateDay(s.now())) {
		return nil, &ValidationError{Field: "startDate", Message: "must not be in the past"}
	}

	lt, err := s.catalog.Get(ctx, req.LeaveTypeID)
	if err != nil {
		return nil, err
	}
	if !lt.Active {
		return nil, ErrLeaveTypeInactive
	}
	if lt.RequiresDocumentation && len(req.DocumentIDs) == 0 {
		return nil, &ValidationError{Field: "documentIds", Message: "this leave type requires supporting documents"}
	}
	if len(req.DocumentIDs) > 0 && s.documents != nil {
		docs, err := s.documents.DocumentsByIDs(ctx, req.DocumentIDs)
		if err != nil {
			return nil, err
		}
		if len(docs) != len(req.DocumentIDs) {
			return nil, &ValidationError{Field: "documentIds", Message: "one or more documents do not exist"}
		}
	}

	if err := s.checkOverlap(ctx, req.UserID, start, end); err != nil {
		return nil, err
	}

	days := Days(float64(InclusiveDays(start, end)))
	leave := Leave{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		LeaveTypeID:  req.LeaveTypeID,
		StartDate:    start,
		EndDate:      end,
		TotalDays:    days,
		Status:       StatusPending,
		Reason:       req.Reason,
		DepartmentID: applicant.DepartmentID,
		DocumentIDs:  req.DocumentIDs,
		CreatedAt:    s.now(),
		UpdatedAt:    s.now(),
	}
	if !lt.RequiresApproval {
		leave.Status = StatusApproved
	}

	key := leave.BalanceKey()
	err = s.ledger.ExecSeeded(ctx, key, func(tx Store) error {
		if err := s.ledger.ReserveTx(ctx, tx, key, days, leave.ID, req.UserID); err != nil {
			return err
		}
		return tx.SaveLeave(ctx, leave)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("leave applied",
		zap.String("leave_id", leave.ID),
		zap.Int64("user_id", leave.UserID),
		zap.String("status", string(leave.Status)),
		zap.String("days", days.String()))
	s.emit(ctx, Event{
		Kind:       EventLeaveApplied,
		LeaveID:    leave.ID,
		UserID:     leave.UserID,
		Recipients: s.adminIDs(ctx),
		Message:    fmt.Sprintf("%s %s requested %s days of %s", applicant.FirstName, applicant.LastName, days, lt.Name),
		At:         s.now(),
	})
	return &leave, nil
}

// checkOverlap rejects a new request that overlaps a pending or approved
// one from the same user.
func (s *Service) checkOverlap(ctx context.Context, userID int64, start, end time.Time) error {
	existing, err := s.store.ListLeavesByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, l := range existing {
		if l.Status != StatusPending && l.Status != StatusApproved {
			continue
		}
		if !start.After(l.EndDate) && !end.Before(l.StartDate) {
			return &ValidationError{Field: "startDate", Message: "overlaps an existing pending or approved leave"}
		}
	}
	return nil
}

// =============================================================================
// APPROVE / REJECT - Manager and admin decisions
// =============================================================================

// Approve moves a pending request to APPROVED. The reservation made at
// apply time stays in place; no balance movement happens here. Only a
// pending request can be approved; a second approve fails like any other
// transition out of APPROVED.
func (s *Service) Approve(ctx context.Context, leaveID string, actorID int64, comments string) (*Leave, error) {
	actor, leave, err := s.authorizeDecision(ctx, leaveID, actorID)
	if err != nil {
		return nil, err
	}

	var out *Leave
	err = s.ledger.Exec(ctx, leave.BalanceKey(), func(tx Store) error {
		cur, err := tx.GetLeave(ctx, leaveID)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrLeaveNotFound
		}
		if !cur.Status.CanTransitionTo(StatusApproved) {
			return &InvalidTransitionError{LeaveID: leaveID, From: cur.Status, To: StatusApproved}
		}

		cur.Status = StatusApproved
		cur.ApproverID = actor.ID
		cur.Comments = comments
		cur.UpdatedAt = s.now()
		if err := tx.SaveLeave(ctx, *cur); err != nil {
			return err
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("leave approved",
		zap.String("leave_id", leaveID),
		zap.Int64("actor_id", actor.ID))
	s.emit(ctx, Event{
		Kind:       EventLeaveApproved,
		LeaveID:    leaveID,
		UserID:     out.UserID,
		Recipients: []int64{out.UserID},
		Message:    "your leave request was approved",
		At:         s.now(),
	})
	return out, nil
}

// Reject moves a pending request to REJECTED and releases the reserved
// days in the same transaction. A rejection comment is mandatory.
func (s *Service) Reject(ctx context.Context, leaveID string, actorID int64, comments string) (*Leave, error) {
	if comments == "" {
		return nil, &ValidationError{Field: "comments", Message: "a rejection comment is required"}
	}
	actor, leave, err := s.authorizeDecision(ctx, leaveID, actorID)
	if err != nil {
		return nil, err
	}

	var out *Leave
	err = s.ledger.Exec(ctx, leave.BalanceKey(), func(tx Store) error {
		cur, err := tx.GetLeave(ctx, leaveID)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrLeaveNotFound
		}
		if !cur.Status.CanTransitionTo(StatusRejected) {
			return &InvalidTransitionError{LeaveID: leaveID, From: cur.Status, To: StatusRejected}
		}
		if err := s.ledger.ReleaseTx(ctx, tx, cur.BalanceKey(), cur.TotalDays, cur.ID, actor.ID); err != nil {
			return err
		}

		cur.Status = StatusRejected
		cur.ApproverID = actor.ID
		cur.Comments = comments
		cur.UpdatedAt = s.now()
		if err := tx.SaveLeave(ctx, *cur); err != nil {
			return err
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("leave rejected",
		zap.String("leave_id", leaveID),
		zap.Int64("actor_id", actor.ID))
	s.emit(ctx, Event{
		Kind:       EventLeaveRejected,
		LeaveID:    leaveID,
		UserID:     out.UserID,
		Recipients: []int64{out.UserID},
		Message:    "your leave request was rejected: " + comments,
		At:         s.now(),
	})
	return out, nil
}

// authorizeDecision resolves the actor and the request's captured
// department, then asks the resolver. All directory traffic happens here,
// before any critical section.
func (s *Service) authorizeDecision(ctx context.Context, leaveID string, actorID int64) (*User, *Leave, error) {
	actor, err := s.directory.User(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}
	if actor == nil {
		return nil, nil, &ValidationError{Field: "actorId", Message: fmt.Sprintf("unknown user %d", actorID)}
	}
	leave, err := s.store.GetLeave(ctx, leaveID)
	if err != nil {
		return nil, nil, err
	}
	if leave == nil {
		return nil, nil, ErrLeaveNotFound
	}
	ok, err := s.resolver.CanDecide(ctx, *actor, leave.DepartmentID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, &UnauthorizedError{ActorID: actorID, DepartmentID: leave.DepartmentID}
	}
	return actor, leave, nil
}

// =============================================================================
// CANCEL - Applicant withdrawal
// =============================================================================

// Cancel withdraws a pending or approved request and releases its days.
// Only the applicant or an admin may cancel, and only before the leave
// starts.
func (s *Service) Cancel(ctx context.Context, leaveID string, actorID int64) (*Leave, error) {
	actor, err := s.directory.User(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, &ValidationError{Field: "actorId", Message: fmt.Sprintf("unknown user %d", actorID)}
	}
	leave, err := s.store.GetLeave(ctx, leaveID)
	if err != nil {
		return nil, err
	}
	if leave == nil {
		return nil, ErrLeaveNotFound
	}
	if actor.ID != leave.UserID && !actor.Role.Administrative() {
		return nil, &UnauthorizedError{ActorID: actorID, DepartmentID: leave.DepartmentID}
	}
	if !leave.StartDate.After(truncateDay(s.now())) && leave.Status == StatusApproved {
		return nil, &ValidationError{Field: "leaveId", Message: "cannot cancel a leave that has already started"}
	}

	var out *Leave
	err = s.ledger.Exec(ctx, leave.BalanceKey(), func(tx Store) error {
		cur, err := tx.GetLeave(ctx, leaveID)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrLeaveNotFound
		}
		if !cur.Status.CanTransitionTo(StatusCancelled) {
			return &InvalidTransitionError{LeaveID: leaveID, From: cur.Status, To: StatusCancelled}
		}
		if err := s.ledger.ReleaseTx(ctx, tx, cur.BalanceKey(), cur.TotalDays, cur.ID, actor.ID); err != nil {
			return err
		}

		cur.Status = StatusCancelled
		cur.UpdatedAt = s.now()
		if err := tx.SaveLeave(ctx, *cur); err != nil {
			return err
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("leave cancelled",
		zap.String("leave_id", leaveID),
		zap.Int64("actor_id", actor.ID))
	recipients := s.adminIDs(ctx)
	if out.ApproverID != 0 {
		recipients = append(recipients, out.ApproverID)
	}
	s.emit(ctx, Event{
		Kind:       EventLeaveCancelled,
		LeaveID:    leaveID,
		UserID:     out.UserID,
		Recipients: recipients,
		Message:    "leave request was cancelled",
		At:         s.now(),
	})
	return out, nil
}

// =============================================================================
// QUERIES - Visibility follows the decision scope
// =============================================================================

// GetLeave returns one request if the actor may see it: the applicant, an
// admin, or a manager of the request's department.
func (s *Service) GetLeave(ctx context.Context, leaveID string, actorID int64) (*Leave, error) {
	leave, err := s.store.GetLeave(ctx, leaveID)
	if err != nil {
		return nil, err
	}
	if leave == nil {
		return nil, ErrLeaveNotFound
	}
	if leave.UserID == actorID {
		return leave, nil
	}
	actor, err := s.directory.User(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, &UnauthorizedError{ActorID: actorID, DepartmentID: leave.DepartmentID}
	}
	ok, err := s.resolver.CanDecide(ctx, *actor, leave.DepartmentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &UnauthorizedError{ActorID: actorID, DepartmentID: leave.DepartmentID}
	}
	return leave, nil
}

// LeavesByUser lists a user's requests, newest first per store ordering.
// Visible to the user, admins, and managers of the user's department.
func (s *Service) LeavesByUser(ctx context.Context, userID, actorID int64) ([]Leave, error) {
	if userID != actorID {
		actor, err := s.directory.User(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if actor == nil {
			return nil, &UnauthorizedError{ActorID: actorID}
		}
		target, err := s.directory.User(ctx, userID)
		if err != nil {
			return nil, err
		}
		if target == nil {
			return nil, &ValidationError{Field: "userId", Message: fmt.Sprintf("unknown user %d", userID)}
		}
		ok, err := s.resolver.CanDecide(ctx, *actor, target.DepartmentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &UnauthorizedError{ActorID: actorID, DepartmentID: target.DepartmentID}
		}
	}
	return s.store.ListLeavesByUser(ctx, userID)
}

// PendingLeaves lists the pending requests the actor may decide: all of
// them for an admin, the managed departments' for a manager.
func (s *Service) PendingLeaves(ctx context.Context, actorID int64) ([]Leave, error) {
	actor, err := s.directory.User(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, &UnauthorizedError{ActorID: actorID}
	}
	scope, err := s.resolver.DecisionScope(ctx, *actor)
	if err != nil {
		return nil, err
	}
	if scope == nil {
		return s.store.ListLeavesByStatus(ctx, StatusPending)
	}
	if len(scope) == 0 {
		if actor.Role == RoleStaff {
			return nil, &UnauthorizedError{ActorID: actorID}
		}
		return []Leave{}, nil
	}
	return s.store.ListLeavesByDepartments(ctx, scope, StatusPending)
}

// =============================================================================
// BALANCE OPERATIONS - Service-level wrappers over the Ledger
// =============================================================================

// Balances returns the actor-visible balance rows for a user and year,
// seeding missing rows for every active leave type so the view is always
// complete. Administrative users hold no balances and get an empty slice.
func (s *Service) Balances(ctx context.Context, userID int64, year int, actorID int64) ([]Balance, error) {
	if userID != actorID {
		actor, err := s.directory.User(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if actor == nil {
			return nil, &UnauthorizedError{ActorID: actorID}
		}
		target, err := s.directory.User(ctx, userID)
		if err != nil {
			return nil, err
		}
		if target == nil {
			return nil, &ValidationError{Field: "userId", Message: fmt.Sprintf("unknown user %d", userID)}
		}
		ok, err := s.resolver.CanDecide(ctx, *actor, target.DepartmentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &UnauthorizedError{ActorID: actorID, DepartmentID: target.DepartmentID}
		}
	}

	target, err := s.directory.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, &ValidationError{Field: "userId", Message: fmt.Sprintf("unknown user %d", userID)}
	}
	if target.Role.Administrative() {
		return []Balance{}, nil
	}

	types, err := s.catalog.List(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]Balance, 0, len(types))
	for _, t := range types {
		b, err := s.ledger.GetOrCreate(ctx, BalanceKey{UserID: userID, LeaveTypeID: t.ID, Year: year})
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}

// BalanceEntries returns the journal for one balance row: the full audit
// trail of every mutation. Visible to the row's owner, admins, and
// managers of the owner's department.
func (s *Service) BalanceEntries(ctx context.Context, key BalanceKey, actorID int64) ([]Entry, error) {
	if key.UserID != actorID {
		actor, err := s.directory.User(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if actor == nil {
			return nil, &UnauthorizedError{ActorID: actorID}
		}
		target, err := s.directory.User(ctx, key.UserID)
		if err != nil {
			return nil, err
		}
		if target == nil {
			return nil, &ValidationError{Field: "userId", Message: fmt.Sprintf("unknown user %d", key.UserID)}
		}
		ok, err := s.resolver.CanDecide(ctx, *actor, target.DepartmentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &UnauthorizedError{ActorID: actorID, DepartmentID: target.DepartmentID}
		}
	}
	return s.store.EntriesByBalance(ctx, key)
}

// AdjustBalance applies an administrative correction. Admin only.
func (s *Service) AdjustBalance(ctx context.Context, key BalanceKey, deltaDays decimal.Decimal, reason string, actorID int64) (*Balance, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	return s.ledger.Adjust(ctx, key, deltaDays, reason, actorID)
}

// BulkAdjust applies the same correction to many users. Per-user failures
// are collected and do not stop the loop; the count of applied
// adjustments is returned alongside the joined errors.
func (s *Service) BulkAdjust(ctx context.Context, userIDs []int64, leaveTypeID int64, year int, deltaDays decimal.Decimal, reason string, actorID int64) (int, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return 0, err
	}
	applied := 0
	var errs []error
	for _, uid := range userIDs {
		key := BalanceKey{UserID: uid, LeaveTypeID: leaveTypeID, Year: year}
		if _, err := s.ledger.Adjust(ctx, key, deltaDays, reason, actorID); err != nil {
			errs = append(errs, fmt.Errorf("user %d: %w", uid, err))
			continue
		}
		applied++
	}
	return applied, errors.Join(errs...)
}

// InitializeMissingBalances seeds the current year's rows for every
// non-administrative user and active type that has none yet. Admin only.
// Returns the number of rows created.
func (s *Service) InitializeMissingBalances(ctx context.Context, year int, actorID int64) (int, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return 0, err
	}
	types, err := s.catalog.List(ctx, true)
	if err != nil {
		return 0, err
	}
	var users []User
	for _, role := range []Role{RoleStaff, RoleManager} {
		batch, err := s.directory.UsersByRole(ctx, role)
		if err != nil {
			return 0, err
		}
		users = append(users, batch...)
	}

	created := 0
	for _, u := range users {
		for _, t := range types {
			key := BalanceKey{UserID: u.ID, LeaveTypeID: t.ID, Year: year}
			existing, err := s.store.GetBalance(ctx, key)
			if err != nil {
				return created, err
			}
			if existing != nil {
				continue
			}
			if _, err := s.ledger.GetOrCreate(ctx, key); err != nil {
				return created, err
			}
			created++
		}
	}
	s.log.Info("missing balances initialized",
		zap.Int("year", year),
		zap.Int("created", created))
	return created, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) requireAdmin(ctx context.Context, actorID int64) error {
	actor, err := s.directory.User(ctx, actorID)
	if err != nil {
		return err
	}
	if actor == nil || actor.Role != RoleAdmin {
		return &UnauthorizedError{ActorID: actorID}
	}
	return nil
}

// adminIDs is best-effort recipient resolution after commit. A directory
// failure here only costs the notification.
func (s *Service) adminIDs(ctx context.Context) []int64 {
	admins, err := s.directory.UsersByRole(ctx, RoleAdmin)
	if err != nil {
		s.log.Warn("could not resolve admin recipients", zap.Error(err))
		return nil
	}
	ids := make([]int64, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.ID)
	}
	return ids
}

// emit forwards an event to the sink. Failures are logged, never returned:
// the state change already committed.
func (s *Service) emit(ctx context.Context, event Event) {
	if s.notify == nil {
		return
	}
	if err := s.notify.Notify(ctx, event); err != nil {
		s.log.Warn("notification failed",
			zap.String("kind", string(event.Kind)),
			zap.String("leave_id", event.LeaveID),
			zap.Error(err))
	}
}
