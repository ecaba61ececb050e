package directory

import (
	"context"
	"sync"

	"github.com/daking/leave-engine/leave"
)

// =============================================================================
// MEMORY DIRECTORY - In-memory fake (for testing/dev)
// =============================================================================

// Memory is an in-memory DirectoryGateway. Set Fail to make every lookup
// report leave.ErrDirectoryUnavailable, simulating an outage.
type Memory struct {
	mu      sync.RWMutex
	users   map[int64]leave.User
	managed map[int64][]int64
	Fail    bool
}

func NewMemory() *Memory {
	return &Memory{
		users:   make(map[int64]leave.User),
		managed: make(map[int64][]int64),
	}
}

// AddUser registers a user record.
func (m *Memory) AddUser(u leave.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// SetManagedDepartments records which departments a manager supervises.
func (m *Memory) SetManagedDepartments(userID int64, departmentIDs []int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.managed[userID] = departmentIDs
}

func (m *Memory) User(_ context.Context, id int64) (*leave.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Fail {
		return nil, leave.ErrDirectoryUnavailable
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) UserByEmail(_ context.Context, email string) (*leave.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Fail {
		return nil, leave.ErrDirectoryUnavailable
	}
	for _, u := range m.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (m *Memory) DepartmentsManaged(_ context.Context, userID int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Fail {
		return nil, leave.ErrDirectoryUnavailable
	}
	return append([]int64{}, m.managed[userID]...), nil
}

func (m *Memory) UsersByRole(_ context.Context, role leave.Role) ([]leave.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Fail {
		return nil, leave.ErrDirectoryUnavailable
	}
	var users []leave.User
	for _, u := range m.users {
		if u.Role == role {
			users = append(users, u)
		}
	}
	return users, nil
}
