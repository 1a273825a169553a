package database

import (
	"cmp"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/visualmatch/internal/colors"
)

// MemoryIndex is an in-process Registry. Queries scan every vector exactly unless
// HNSW candidate search is enabled and the index has grown past its minimum size.
// Vectors are copied on insert, so callers may reuse their slices.
type MemoryIndex struct {
	mu       sync.RWMutex
	kind     string
	dim      int
	subjects map[string]*Subject

	hnswEnabled bool
	hnswMinSize int
	graph       *hnsw.Graph[string]
	graphStale  bool

	snapshotPath string
	now          func() time.Time
}

// MemoryOption configures a MemoryIndex.
type MemoryOption func(*MemoryIndex)

// WithDimension pins the vector length instead of taking it from the first insert.
func WithDimension(dim int) MemoryOption {
	return func(m *MemoryIndex) {
		if dim > 0 {
			m.dim = dim
		}
	}
}

// WithHNSW enables approximate candidate search once at least minSize vectors are indexed.
//
// The graph trades recall for speed: coder/hnsw stops its greedy layer-0 walk at
// the first expansion that does not improve the best distance, so a query can miss
// subjects above the threshold, including the exact best match. Returned scores
// are always exact. Leave it off unless full scans are too slow.
func WithHNSW(minSize int) MemoryOption {
	return func(m *MemoryIndex) {
		m.hnswEnabled = true
		m.hnswMinSize = minSize
		if m.hnswMinSize <= 0 {
			m.hnswMinSize = HNSWDefaultMinSize
		}
	}
}

// WithSnapshotPath sets the file used by Save and OpenMemoryIndex.
func WithSnapshotPath(path string) MemoryOption {
	return func(m *MemoryIndex) {
		m.snapshotPath = path
	}
}

// NewMemoryIndex creates an empty index for one subject kind.
func NewMemoryIndex(kind string, opts ...MemoryOption) *MemoryIndex {
	m := &MemoryIndex{
		kind:     kind,
		subjects: make(map[string]*Subject),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OpenMemoryIndex creates an index and restores it from its snapshot file when one exists.
func OpenMemoryIndex(kind string, opts ...MemoryOption) (*MemoryIndex, error) {
	m := NewMemoryIndex(kind, opts...)
	if m.snapshotPath == "" {
		return m, nil
	}
	if err := m.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return m, nil
}

var _ Registry = (*MemoryIndex)(nil)

// Insert implements SimilarityIndex.
func (m *MemoryIndex) Insert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.SubjectID == "" {
		return ErrInvalidSubjectID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(rec.Vector) == 0 || (m.dim > 0 && len(rec.Vector) != m.dim) {
		return &DimensionMismatchError{Expected: m.dim, Actual: len(rec.Vector)}
	}
	if m.dim == 0 {
		m.dim = len(rec.Vector)
	}

	now := m.now()
	s, exists := m.subjects[rec.SubjectID]
	if !exists {
		s = &Subject{Kind: m.kind, ID: rec.SubjectID, CreatedAt: now}
		m.subjects[rec.SubjectID] = s
	}
	replaced := s.Vector != nil

	s.Vector = slices.Clone(rec.Vector)
	s.Colors = slices.Clone(rec.Colors)
	s.Label = rec.Label
	s.Status = StatusFeatured
	s.FeaturedAt = &now

	switch {
	case m.graph == nil:
	case replaced:
		m.graphStale = true
	case !IsZeroVector(s.Vector):
		m.graph.Add(hnsw.MakeNode(s.ID, s.Vector))
	}
	return nil
}

// Query implements SimilarityIndex.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, threshold float64, limit int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.ensureGraph()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dim == 0 {
		return []Match{}, nil
	}
	if len(vector) != m.dim {
		return nil, &DimensionMismatchError{Expected: m.dim, Actual: len(vector)}
	}
	if limit <= 0 || IsZeroVector(vector) {
		return []Match{}, nil
	}

	var candidates []Match
	if pool := limit * HNSWSearchMultiplier; m.graph != nil && pool <= m.graph.EfSearch {
		candidates = m.graphCandidates(vector, limit)
	} else {
		candidates = make([]Match, 0, len(m.subjects))
		for id, s := range m.subjects {
			if s.Vector == nil || IsZeroVector(s.Vector) {
				continue
			}
			candidates = append(candidates, Match{SubjectID: id, Score: CosineSimilarity(vector, s.Vector)})
		}
	}
	return RankMatches(candidates, threshold, limit), nil
}

// graphCandidates asks the HNSW graph for neighbors and rescores them exactly.
// Callers hold at least the read lock.
func (m *MemoryIndex) graphCandidates(vector []float32, limit int) []Match {
	searchK := max(limit*HNSWSearchMultiplier, m.graph.EfSearch)
	neighbors := m.graph.Search(vector, searchK)

	candidates := make([]Match, 0, len(neighbors))
	for _, n := range neighbors {
		s, ok := m.subjects[n.Key]
		if !ok || s.Vector == nil {
			continue
		}
		candidates = append(candidates, Match{SubjectID: n.Key, Score: CosineSimilarity(vector, s.Vector)})
	}
	return candidates
}

// ensureGraph builds or rebuilds the HNSW graph when it is enabled and needed.
func (m *MemoryIndex) ensureGraph() {
	if !m.hnswEnabled {
		return
	}

	m.mu.RLock()
	count := m.countLocked()
	needed := count >= m.hnswMinSize && (m.graph == nil || m.graphStale)
	drop := count < m.hnswMinSize && m.graph != nil
	m.mu.RUnlock()
	if !needed && !drop {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.countLocked() < m.hnswMinSize {
		m.graph = nil
		m.graphStale = false
		return
	}
	if m.graph != nil && !m.graphStale {
		return
	}

	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1 / math.Log(HNSWMaxNeighbors)
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance

	ids := make([]string, 0, len(m.subjects))
	for id, s := range m.subjects {
		if s.Vector != nil && !IsZeroVector(s.Vector) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		g.Add(hnsw.MakeNode(id, m.subjects[id].Vector))
	}

	m.graph = g
	m.graphStale = false
}

// Delete implements SimilarityIndex.
func (m *MemoryIndex) Delete(ctx context.Context, subjectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subjects[subjectID]
	if !ok {
		return ErrSubjectNotFound
	}
	delete(m.subjects, subjectID)
	if m.graph != nil && s.Vector != nil {
		m.graphStale = true
	}
	return nil
}

// Count implements SimilarityIndex.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countLocked(), nil
}

func (m *MemoryIndex) countLocked() int {
	n := 0
	for _, s := range m.subjects {
		if s.Vector != nil {
			n++
		}
	}
	return n
}

// Dimension implements SimilarityIndex.
func (m *MemoryIndex) Dimension(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dim, nil
}

// CreateSubject implements SubjectWriter.
func (m *MemoryIndex) CreateSubject(ctx context.Context, subjectID, imageURL string) (*Subject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if subjectID == "" {
		return nil, ErrInvalidSubjectID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subjects[subjectID]
	if !ok {
		s = &Subject{Kind: m.kind, ID: subjectID, Status: StatusPending, CreatedAt: m.now()}
		m.subjects[subjectID] = s
	}
	s.ImageURL = imageURL
	return copySubject(s), nil
}

// GetSubject implements SubjectReader.
func (m *MemoryIndex) GetSubject(ctx context.Context, subjectID string) (*Subject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.subjects[subjectID]
	if !ok {
		return nil, ErrSubjectNotFound
	}
	return copySubject(s), nil
}

// ListPending implements SubjectReader.
func (m *MemoryIndex) ListPending(ctx context.Context, limit int) ([]Subject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	pending := make([]Subject, 0)
	for _, s := range m.subjects {
		if s.Vector == nil && s.ImageURL != "" {
			pending = append(pending, *copySubject(s))
		}
	}
	slices.SortFunc(pending, func(a, b Subject) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// ListFeatured implements SubjectReader.
func (m *MemoryIndex) ListFeatured(ctx context.Context, afterID string, limit int) ([]Subject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	featured := make([]Subject, 0)
	for id, s := range m.subjects {
		if s.Vector != nil && id > afterID {
			featured = append(featured, *copySubject(s))
		}
	}
	slices.SortFunc(featured, func(a, b Subject) int {
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(featured) > limit {
		featured = featured[:limit]
	}
	return featured, nil
}

// UpdateLabel implements SubjectWriter.
func (m *MemoryIndex) UpdateLabel(ctx context.Context, subjectID string, label colors.Label) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subjects[subjectID]
	if !ok {
		return ErrSubjectNotFound
	}
	s.Label = label
	return nil
}

func copySubject(s *Subject) *Subject {
	c := *s
	c.Vector = slices.Clone(s.Vector)
	c.Colors = slices.Clone(s.Colors)
	if s.FeaturedAt != nil {
		t := *s.FeaturedAt
		c.FeaturedAt = &t
	}
	return &c
}

// memorySnapshot is the gob payload written by Save.
type memorySnapshot struct {
	Kind     string
	Dim      int
	Subjects []Subject
}

// Save writes the index to its snapshot path. The file is replaced atomically.
func (m *MemoryIndex) Save() error {
	if m.snapshotPath == "" {
		return nil
	}

	m.mu.RLock()
	snap := memorySnapshot{Kind: m.kind, Dim: m.dim, Subjects: make([]Subject, 0, len(m.subjects))}
	for _, s := range m.subjects {
		snap.Subjects = append(snap.Subjects, *s)
	}
	m.mu.RUnlock()

	tmp, err := os.CreateTemp(filepath.Dir(m.snapshotPath), filepath.Base(m.snapshotPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.snapshotPath); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Load replaces the index content with the snapshot file.
func (m *MemoryIndex) Load() error {
	f, err := os.Open(m.snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	var snap memorySnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Kind != m.kind {
		return fmt.Errorf("snapshot holds kind %q, expected %q", snap.Kind, m.kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dim > 0 && snap.Dim > 0 && snap.Dim != m.dim {
		return &DimensionMismatchError{Expected: m.dim, Actual: snap.Dim}
	}
	if snap.Dim > 0 {
		m.dim = snap.Dim
	}
	m.subjects = make(map[string]*Subject, len(snap.Subjects))
	for i := range snap.Subjects {
		s := snap.Subjects[i]
		m.subjects[s.ID] = &s
	}
	m.graph = nil
	m.graphStale = false
	return nil
}
