/*
authz.go - Who may decide a leave request

PURPOSE:
  One question, answered in one place: can this actor approve or reject a
  request from this department? Admins decide anything; managers decide
  only for departments they supervise; staff decide nothing.

  Department scope is checked against the department captured on the leave
  at apply time, so a later transfer of the applicant does not silently
  change who may decide.
*/
package leave

import "context"

// Resolver answers authorization questions against the directory.
type Resolver struct {
	directory DirectoryGateway
}

func NewResolver(directory DirectoryGateway) *Resolver {
	return &Resolver{directory: directory}
}

// CanDecide reports whether actor may approve or reject a request filed
// from departmentID. A directory failure surfaces as
// ErrDirectoryUnavailable so the caller can refuse before mutating.
func (r *Resolver) CanDecide(ctx context.Context, actor User, departmentID int64) (bool, error) {
	switch actor.Role {
	case RoleAdmin:
		return true, nil
	case RoleManager:
		depts, err := r.directory.DepartmentsManaged(ctx, actor.ID)
		if err != nil {
			return false, err
		}
		for _, d := range depts {
			if d == departmentID {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, nil
	}
}

// DecisionScope returns the department ids whose pending requests the
// actor may see: nil means unrestricted (admin), an empty slice means
// none.
func (r *Resolver) DecisionScope(ctx context.Context, actor User) ([]int64, error) {
	switch actor.Role {
	case RoleAdmin:
		return nil, nil
	case RoleManager:
		depts, err := r.directory.DepartmentsManaged(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if depts == nil {
			depts = []int64{}
		}
		return depts, nil
	default:
		return []int64{}, nil
	}
}
