// Package documents provides leave.DocumentService implementations.
// Storage and rendering live elsewhere; this service only answers
// whether the referenced documents exist.
package documents

import (
	"context"
	"sync"

	"github.com/daking/leave-engine/leave"
)

// Memory is an in-memory DocumentService for tests and development.
type Memory struct {
	mu   sync.RWMutex
	docs map[int64]leave.DocumentRef
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[int64]leave.DocumentRef)}
}

// Add registers a document reference.
func (m *Memory) Add(doc leave.DocumentRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
}

// DocumentsByIDs returns the refs that exist; unknown ids are simply
// absent from the result, callers compare lengths.
func (m *Memory) DocumentsByIDs(_ context.Context, ids []int64) ([]leave.DocumentRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]leave.DocumentRef, 0, len(ids))
	for _, id := range ids {
		if doc, ok := m.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}
