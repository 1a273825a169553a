package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/kozaktomas/visualmatch/internal/colors"
)

func insert(t *testing.T, idx *MemoryIndex, id string, vec ...float32) {
	t.Helper()
	if err := idx.Insert(context.Background(), Record{SubjectID: id, Vector: vec}); err != nil {
		t.Fatalf("Insert(%s) failed: %v", id, err)
	}
}

func TestMemoryIndex_EndToEndQuery(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex("pet")
	insert(t, idx, "A", 1, 0, 0)
	insert(t, idx, "B", 0, 1, 0)
	insert(t, idx, "C", 0.9, 0.1, 0)

	matches, err := idx.Query(ctx, []float32{1, 0, 0}, 0.8, 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %v", matches)
	}
	if matches[0].SubjectID != "A" || math.Abs(matches[0].Score-1.0) > 1e-9 {
		t.Errorf("first match = %+v, want A with 1.0", matches[0])
	}
	if matches[1].SubjectID != "C" || math.Abs(matches[1].Score-0.9939) > 0.001 {
		t.Errorf("second match = %+v, want C with ~0.994", matches[1])
	}
}

func TestMemoryIndex_TieBreakBySubjectID(t *testing.T) {
	idx := NewMemoryIndex("pet")
	insert(t, idx, "zeta", 1, 0)
	insert(t, idx, "alpha", 2, 0)
	insert(t, idx, "mid", 5, 0)

	matches, err := idx.Query(context.Background(), []float32{1, 0}, 0.5, 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, id := range want {
		if matches[i].SubjectID != id {
			t.Errorf("position %d: got %s, want %s", i, matches[i].SubjectID, id)
		}
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex("pet")
	insert(t, idx, "A", 1, 0, 0)

	err := idx.Insert(ctx, Record{SubjectID: "B", Vector: []float32{1, 0}})
	var dimErr *DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if dimErr.Expected != 3 || dimErr.Actual != 2 {
		t.Errorf("got %+v", dimErr)
	}
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Error("expected error to match ErrDimensionMismatch")
	}

	if _, err := idx.Query(ctx, []float32{1, 0, 0, 0}, 0, 10); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Query with wrong length: expected ErrDimensionMismatch, got %v", err)
	}
	if err := idx.Insert(ctx, Record{SubjectID: "C"}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Insert of empty vector: expected ErrDimensionMismatch, got %v", err)
	}
}

func TestMemoryIndex_PinnedDimension(t *testing.T) {
	idx := NewMemoryIndex("pet", WithDimension(4))
	err := idx.Insert(context.Background(), Record{SubjectID: "A", Vector: []float32{1, 0, 0}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	dim, _ := idx.Dimension(context.Background())
	if dim != 4 {
		t.Errorf("Dimension() = %d, want 4", dim)
	}
}

func TestMemoryIndex_EmptyIndexQuery(t *testing.T) {
	matches, err := NewMemoryIndex("pet").Query(context.Background(), []float32{1, 2}, 0, 5)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches, got %v", matches)
	}
}

func TestMemoryIndex_ZeroVectorNeverMatches(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex("pet")
	insert(t, idx, "zero", 0, 0, 0)
	insert(t, idx, "A", 1, 0, 0)

	matches, err := idx.Query(ctx, []float32{1, 0, 0}, -1, 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 1 || matches[0].SubjectID != "A" {
		t.Errorf("expected only A, got %v", matches)
	}

	matches, err = idx.Query(ctx, []float32{0, 0, 0}, -1, 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("zero query should match nothing, got %v", matches)
	}
}

func TestMemoryIndex_InsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex("pet")
	insert(t, idx, "A", 1, 0)
	insert(t, idx, "A", 0, 1)

	count, _ := idx.Count(ctx)
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
	matches, _ := idx.Query(ctx, []float32{0, 1}, 0.99, 10)
	if len(matches) != 1 || matches[0].SubjectID != "A" {
		t.Errorf("expected replaced vector to match, got %v", matches)
	}
}

func TestMemoryIndex_CopiesVector(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex("pet")
	vec := []float32{1, 0}
	if err := idx.Insert(ctx, Record{SubjectID: "A", Vector: vec}); err != nil {
		t.Fatal(err)
	}
	vec[0], vec[1] = 0, 1

	matches, _ := idx.Query(ctx, []float32{1, 0}, 0.99, 10)
	if len(matches) != 1 {
		t.Errorf("caller mutation leaked into index: %v", matches)
	}
}

func TestMemoryIndex_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx := NewMemoryIndex("pet")
	if err := idx.Insert(ctx, Record{SubjectID: "A", Vector: []float32{1}}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	count, _ := idx.Count(context.Background())
	if count != 0 {
		t.Errorf("cancelled insert wrote %d vectors", count)
	}
}

func TestMemoryIndex_SubjectLifecycle(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex("victim")
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	idx.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	for _, id := range []string{"s2", "s1", "s3"} {
		if _, err := idx.CreateSubject(ctx, id, "https://img/"+id); err != nil {
			t.Fatalf("CreateSubject failed: %v", err)
		}
	}
	if _, err := idx.CreateSubject(ctx, "no-image", ""); err != nil {
		t.Fatalf("CreateSubject failed: %v", err)
	}

	pending, err := idx.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 3 || pending[0].ID != "s2" || pending[2].ID != "s3" {
		t.Fatalf("unexpected pending order: %v", pending)
	}

	sample := colors.Sample{{Color: colors.RGB{255, 0, 0}, Fraction: 1}}
	if err := idx.Insert(ctx, Record{SubjectID: "s1", Vector: []float32{1, 0}, Colors: sample, Label: colors.Red}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	s, err := idx.GetSubject(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSubject failed: %v", err)
	}
	if s.Status != StatusFeatured || s.Label != colors.Red || s.ImageURL != "https://img/s1" || s.FeaturedAt == nil {
		t.Errorf("unexpected subject after insert: %+v", s)
	}

	pending, _ = idx.ListPending(ctx, 10)
	if len(pending) != 2 {
		t.Errorf("expected 2 pending subjects, got %d", len(pending))
	}

	featured, _ := idx.ListFeatured(ctx, "", 10)
	if len(featured) != 1 || featured[0].ID != "s1" {
		t.Errorf("unexpected featured list: %v", featured)
	}

	if err := idx.UpdateLabel(ctx, "s1", colors.Blue); err != nil {
		t.Fatalf("UpdateLabel failed: %v", err)
	}

	if err := idx.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := idx.GetSubject(ctx, "s1"); !errors.Is(err, ErrSubjectNotFound) {
		t.Errorf("expected ErrSubjectNotFound, got %v", err)
	}
	if err := idx.Delete(ctx, "s1"); !errors.Is(err, ErrSubjectNotFound) {
		t.Errorf("expected ErrSubjectNotFound on second delete, got %v", err)
	}
	matches, _ := idx.Query(ctx, []float32{1, 0}, 0, 10)
	if len(matches) != 0 {
		t.Errorf("deleted subject still matches: %v", matches)
	}
}

func TestMemoryIndex_ListFeaturedPages(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex("pet")
	for i := range 5 {
		insert(t, idx, fmt.Sprintf("s%d", i), 1, float32(i))
	}

	page, _ := idx.ListFeatured(ctx, "", 2)
	if len(page) != 2 || page[1].ID != "s1" {
		t.Fatalf("unexpected first page: %v", page)
	}
	page, _ = idx.ListFeatured(ctx, page[1].ID, 10)
	if len(page) != 3 || page[0].ID != "s2" {
		t.Fatalf("unexpected second page: %v", page)
	}
}

func TestMemoryIndex_HNSWCandidates(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex("pet", WithHNSW(2))
	for i := range 30 {
		angle := float64(i) * math.Pi / 60
		insert(t, idx, fmt.Sprintf("s%02d", i), float32(math.Cos(angle)), float32(math.Sin(angle)), 0.1)
	}

	matches, err := idx.Query(ctx, []float32{1, 0, 0.1}, 0.9, 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %v", matches)
	}
	if matches[0].SubjectID != "s00" {
		t.Errorf("nearest = %s, want s00", matches[0].SubjectID)
	}

	// Replacing a vector marks the graph stale; the next query sees the new vector.
	insert(t, idx, "s00", 0, 0, 1)
	matches, _ = idx.Query(ctx, []float32{1, 0, 0.1}, 0.9, 1)
	if len(matches) != 1 || matches[0].SubjectID != "s01" {
		t.Errorf("after replace nearest = %v, want s01", matches)
	}
}

func randomVectors(rng *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		out[i] = v
	}
	return out
}

func TestMemoryIndex_HNSWLargeLimitUsesExactScan(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(7, 11))
	approx := NewMemoryIndex("pet", WithHNSW(10))
	exact := NewMemoryIndex("pet")
	for i, v := range randomVectors(rng, 400, 16) {
		id := fmt.Sprintf("s%04d", i)
		insert(t, approx, id, v...)
		insert(t, exact, id, v...)
	}

	// limit*HNSWSearchMultiplier exceeds the graph pool, so both indexes scan.
	limit := HNSWEfSearch/HNSWSearchMultiplier + 1
	for _, q := range randomVectors(rng, 5, 16) {
		want, err := exact.Query(ctx, q, 0, limit)
		if err != nil {
			t.Fatalf("exact Query failed: %v", err)
		}
		got, err := approx.Query(ctx, q, 0, limit)
		if err != nil {
			t.Fatalf("HNSW Query failed: %v", err)
		}
		if !slices.Equal(got, want) {
			t.Fatalf("large-limit query differs from exact scan:\n got %v\nwant %v", got, want)
		}
	}
}

func TestMemoryIndex_HNSWRecallAgainstExactScan(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))
	approx := NewMemoryIndex("pet", WithHNSW(100))
	vectors := randomVectors(rng, 2000, 32)
	for i, v := range vectors {
		insert(t, approx, fmt.Sprintf("s%04d", i), v...)
	}

	const (
		queries   = 50
		threshold = 0.3
		limit     = 10
	)
	var found, total int
	for _, q := range randomVectors(rng, queries, 32) {
		got, err := approx.Query(ctx, q, threshold, limit)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}

		// Exact reference computed directly from the inserted vectors.
		var ref []Match
		for i, v := range vectors {
			ref = append(ref, Match{SubjectID: fmt.Sprintf("s%04d", i), Score: CosineSimilarity(q, v)})
		}
		want := RankMatches(ref, threshold, limit)

		wantScore := make(map[string]float64, len(ref))
		for _, m := range ref {
			wantScore[m.SubjectID] = m.Score
		}
		for i, m := range got {
			if m.Score < threshold {
				t.Errorf("match %s scored %v below threshold", m.SubjectID, m.Score)
			}
			if math.Abs(m.Score-wantScore[m.SubjectID]) > 1e-9 {
				t.Errorf("match %s score %v, exact %v", m.SubjectID, m.Score, wantScore[m.SubjectID])
			}
			if i > 0 && got[i-1].Score < m.Score {
				t.Errorf("matches not ordered by score: %v", got)
			}
		}

		inGot := make(map[string]bool, len(got))
		for _, m := range got {
			inGot[m.SubjectID] = true
		}
		for _, m := range want {
			total++
			if inGot[m.SubjectID] {
				found++
			}
		}
	}

	if total == 0 {
		t.Fatal("exact scan returned no matches, fixture too sparse")
	}
	recall := float64(found) / float64(total)
	t.Logf("HNSW recall@%d against exact scan: %.2f (%d/%d)", limit, recall, found, total)
	if found == 0 {
		t.Errorf("HNSW found none of the %d exact matches", total)
	}
}

func TestMemoryIndex_Snapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pet.gob")

	idx := NewMemoryIndex("pet", WithSnapshotPath(path))
	insert(t, idx, "A", 1, 0, 0)
	if _, err := idx.CreateSubject(ctx, "P", "https://img/p"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored, err := OpenMemoryIndex("pet", WithSnapshotPath(path))
	if err != nil {
		t.Fatalf("OpenMemoryIndex failed: %v", err)
	}
	dim, _ := restored.Dimension(ctx)
	if dim != 3 {
		t.Errorf("Dimension() = %d, want 3", dim)
	}
	matches, _ := restored.Query(ctx, []float32{1, 0, 0}, 0.9, 10)
	if len(matches) != 1 || matches[0].SubjectID != "A" {
		t.Errorf("unexpected matches after restore: %v", matches)
	}
	pending, _ := restored.ListPending(ctx, 10)
	if len(pending) != 1 || pending[0].ID != "P" {
		t.Errorf("unexpected pending after restore: %v", pending)
	}

	if _, err := OpenMemoryIndex("victim", WithSnapshotPath(path)); err == nil {
		t.Error("expected error when opening snapshot of another kind")
	}
}

func TestOpenMemoryIndex_MissingSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.gob")
	idx, err := OpenMemoryIndex("pet", WithSnapshotPath(path))
	if err != nil {
		t.Fatalf("OpenMemoryIndex failed: %v", err)
	}
	count, _ := idx.Count(context.Background())
	if count != 0 {
		t.Errorf("expected empty index, got %d", count)
	}
}
