// Package mock provides a scripted feature extractor for tests.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kozaktomas/visualmatch/internal/extractor"
)

// ErrUnknownImage is returned for references the mock has no features for.
var ErrUnknownImage = errors.New("mock: unknown image")

// MockExtractor answers Extract from a table keyed by image URL, or by the raw bytes
// as a string for byte references.
type MockExtractor struct {
	mu       sync.Mutex
	features map[string]*extractor.Features
	errors   map[string]error
	calls    []string

	// Hook runs before every Extract call when set.
	Hook func(ctx context.Context, ref extractor.ImageRef)
}

// NewMockExtractor creates an empty mock.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{
		features: make(map[string]*extractor.Features),
		errors:   make(map[string]error),
	}
}

// Set scripts the features returned for key.
func (m *MockExtractor) Set(key string, f *extractor.Features) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features[key] = f
}

// SetVector scripts a vector without color data for key.
func (m *MockExtractor) SetVector(key string, vector ...float32) {
	m.Set(key, &extractor.Features{Vector: vector})
}

// Fail scripts an error for key.
func (m *MockExtractor) Fail(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[key] = err
}

// Calls returns the keys Extract was called with, in order.
func (m *MockExtractor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Extract returns the scripted answer for ref.
func (m *MockExtractor) Extract(ctx context.Context, ref extractor.ImageRef) (*extractor.Features, error) {
	if m.Hook != nil {
		m.Hook(ctx, ref)
	}

	key := ref.URL
	if len(ref.Data) > 0 {
		key = string(ref.Data)
	}

	m.mu.Lock()
	m.calls = append(m.calls, key)
	f, ok := m.features[key]
	err := m.errors[key]
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownImage, key)
	}

	out := &extractor.Features{
		Vector: append([]float32(nil), f.Vector...),
		Colors: append(f.Colors[:0:0], f.Colors...),
	}
	return out, nil
}
