/*
gateway.go - Contracts for external collaborators

PURPOSE:
  The core only sees interfaces for the services it depends on. Production
  adapters live in directory/ and notify/; tests use in-memory fakes.

CONTRACTS:
  DirectoryGateway: read-only identity/department facts (role, department,
                    management scope). Failures surface as
                    ErrDirectoryUnavailable and are resolved BEFORE entering
                    any balance critical section.
  NotificationSink: receives lifecycle events after commit. Best-effort:
                    a sink failure is logged and never rolls back the
                    operation that emitted the event.
  DocumentService:  resolves document references attached at apply time.
                    The core never mutates documents.
*/
package leave

import "context"

// DirectoryGateway looks up identity and department facts. Implementations
// must honor context deadlines; a lookup failure or timeout must be
// reported as (or wrapping) ErrDirectoryUnavailable.
type DirectoryGateway interface {
	// User returns the directory record for an id, or nil if unknown.
	User(ctx context.Context, id int64) (*User, error)

	// UserByEmail returns the directory record for an email, or nil.
	UserByEmail(ctx context.Context, email string) (*User, error)

	// DepartmentsManaged returns the department ids a manager supervises.
	DepartmentsManaged(ctx context.Context, userID int64) ([]int64, error)

	// UsersByRole returns all users holding a role.
	UsersByRole(ctx context.Context, role Role) ([]User, error)
}

// NotificationSink forwards lifecycle events as email/in-app notices.
type NotificationSink interface {
	Notify(ctx context.Context, event Event) error
}

// DocumentService resolves supporting documents attached to a leave.
type DocumentService interface {
	DocumentsByIDs(ctx context.Context, ids []int64) ([]DocumentRef, error)
}
