/*
catalog.go - Leave type catalog (reference data CRUD)

PURPOSE:
  Admin-managed catalog of leave types. Entitlement defaults, accrual
  rates, carry-over caps, and policy flags all live here; the Ledger and
  the state machine read from it, never write.

DELETE SEMANTICS:
  A type referenced by any leave or balance cannot be deleted; retire it
  by setting Active=false instead. Inactive types reject new applications
  but keep serving historical records.
*/
package leave

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Catalog manages leave type reference data.
type Catalog struct {
	store Store
	log   *zap.Logger
	now   nowFunc
}

func NewCatalog(store Store, log *zap.Logger) *Catalog {
	return &Catalog{store: store, log: log, now: defaultNow}
}

// Create registers a new leave type. Names must be unique (case-insensitive).
func (c *Catalog) Create(ctx context.Context, t LeaveType) (*LeaveType, error) {
	if err := c.validate(&t); err != nil {
		return nil, err
	}
	existing, err := c.findByName(ctx, t.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &ValidationError{Field: "name", Message: "leave type name already exists"}
	}

	t.ID = 0
	t.Active = true
	t.CreatedAt = c.now()
	t.UpdatedAt = t.CreatedAt
	if err := c.store.SaveLeaveType(ctx, &t); err != nil {
		return nil, err
	}
	c.log.Info("leave type created",
		zap.Int64("leave_type_id", t.ID),
		zap.String("name", t.Name))
	return &t, nil
}

// Update replaces the mutable fields of an existing type. Entitlement
// changes affect only balances seeded afterwards; existing rows are
// corrected through ledger adjustments.
func (c *Catalog) Update(ctx context.Context, id int64, t LeaveType) (*LeaveType, error) {
	if err := c.validate(&t); err != nil {
		return nil, err
	}
	current, err := c.store.GetLeaveType(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrLeaveTypeNotFound
	}
	if !strings.EqualFold(current.Name, t.Name) {
		clash, err := c.findByName(ctx, t.Name)
		if err != nil {
			return nil, err
		}
		if clash != nil {
			return nil, &ValidationError{Field: "name", Message: "leave type name already exists"}
		}
	}

	current.Name = t.Name
	current.DefaultDays = t.DefaultDays
	current.AccrualRate = t.AccrualRate
	current.CarryOverAllowed = t.CarryOverAllowed
	current.MaxCarryOverDays = t.MaxCarryOverDays
	current.RequiresApproval = t.RequiresApproval
	current.RequiresDocumentation = t.RequiresDocumentation
	current.Paid = t.Paid
	current.Active = t.Active
	current.UpdatedAt = c.now()
	if err := c.store.SaveLeaveType(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// Get returns a type by id.
func (c *Catalog) Get(ctx context.Context, id int64) (*LeaveType, error) {
	t, err := c.store.GetLeaveType(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrLeaveTypeNotFound
	}
	return t, nil
}

// List returns all types. activeOnly filters out retired ones.
func (c *Catalog) List(ctx context.Context, activeOnly bool) ([]LeaveType, error) {
	all, err := c.store.ListLeaveTypes(ctx)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return all, nil
	}
	active := make([]LeaveType, 0, len(all))
	for _, t := range all {
		if t.Active {
			active = append(active, t)
		}
	}
	return active, nil
}

// Delete removes a type that nothing references. Types with leaves or
// balances against them fail with ErrLeaveTypeInUse; retire those with
// Active=false instead.
func (c *Catalog) Delete(ctx context.Context, id int64) error {
	t, err := c.store.GetLeaveType(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return ErrLeaveTypeNotFound
	}
	leaves, err := c.store.CountLeavesByType(ctx, id)
	if err != nil {
		return err
	}
	balances, err := c.store.CountBalancesByType(ctx, id)
	if err != nil {
		return err
	}
	if leaves > 0 || balances > 0 {
		return ErrLeaveTypeInUse
	}
	if err := c.store.DeleteLeaveType(ctx, id); err != nil {
		return err
	}
	c.log.Info("leave type deleted", zap.Int64("leave_type_id", id), zap.String("name", t.Name))
	return nil
}

func (c *Catalog) validate(t *LeaveType) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if t.DefaultDays.IsNegative() {
		return &ValidationError{Field: "defaultDays", Message: "must not be negative"}
	}
	if t.AccrualRate.IsNegative() {
		return &ValidationError{Field: "accrualRate", Message: "must not be negative"}
	}
	if t.MaxCarryOverDays.IsNegative() {
		return &ValidationError{Field: "maxCarryOverDays", Message: "must not be negative"}
	}
	if !t.CarryOverAllowed && t.MaxCarryOverDays.IsPositive() {
		return &ValidationError{Field: "maxCarryOverDays", Message: "carry-over is not allowed for this type"}
	}
	return nil
}

func (c *Catalog) findByName(ctx context.Context, name string) (*LeaveType, error) {
	all, err := c.store.ListLeaveTypes(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if strings.EqualFold(all[i].Name, name) {
			return &all[i], nil
		}
	}
	return nil, nil
}
