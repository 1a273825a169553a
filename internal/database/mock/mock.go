// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/visualmatch/internal/colors"
	"github.com/kozaktomas/visualmatch/internal/database"
)

// MockRegistry is a database.Registry backed by a MemoryIndex with error injection
// and call recording.
type MockRegistry struct {
	*database.MemoryIndex

	mu       sync.Mutex
	inserted []string

	// Error injection
	InsertError       error
	QueryError        error
	DeleteError       error
	ListPendingError  error
	ListFeaturedError error
	UpdateLabelError  error
	// InsertErrors fails Insert for specific subject ids
	InsertErrors map[string]error
}

var _ database.Registry = (*MockRegistry)(nil)

// NewMockRegistry creates an empty mock registry for kind.
func NewMockRegistry(kind string) *MockRegistry {
	return &MockRegistry{MemoryIndex: database.NewMemoryIndex(kind)}
}

// Insert records the call and delegates unless an error is injected
func (m *MockRegistry) Insert(ctx context.Context, rec database.Record) error {
	m.mu.Lock()
	m.inserted = append(m.inserted, rec.SubjectID)
	err := m.InsertError
	if e, ok := m.InsertErrors[rec.SubjectID]; ok {
		err = e
	}
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return m.MemoryIndex.Insert(ctx, rec)
}

// Query delegates unless an error is injected
func (m *MockRegistry) Query(ctx context.Context, vector []float32, threshold float64, limit int) ([]database.Match, error) {
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	return m.MemoryIndex.Query(ctx, vector, threshold, limit)
}

// Delete delegates unless an error is injected
func (m *MockRegistry) Delete(ctx context.Context, subjectID string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	return m.MemoryIndex.Delete(ctx, subjectID)
}

// ListPending delegates unless an error is injected
func (m *MockRegistry) ListPending(ctx context.Context, limit int) ([]database.Subject, error) {
	if m.ListPendingError != nil {
		return nil, m.ListPendingError
	}
	return m.MemoryIndex.ListPending(ctx, limit)
}

// ListFeatured delegates unless an error is injected
func (m *MockRegistry) ListFeatured(ctx context.Context, afterID string, limit int) ([]database.Subject, error) {
	if m.ListFeaturedError != nil {
		return nil, m.ListFeaturedError
	}
	return m.MemoryIndex.ListFeatured(ctx, afterID, limit)
}

// UpdateLabel delegates unless an error is injected
func (m *MockRegistry) UpdateLabel(ctx context.Context, subjectID string, label colors.Label) error {
	if m.UpdateLabelError != nil {
		return m.UpdateLabelError
	}
	return m.MemoryIndex.UpdateLabel(ctx, subjectID, label)
}

// InsertCalls returns the subject ids passed to Insert, in call order
func (m *MockRegistry) InsertCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.inserted))
	copy(out, m.inserted)
	return out
}
