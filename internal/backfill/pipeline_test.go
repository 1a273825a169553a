package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/visualmatch/internal/constants"
	"github.com/kozaktomas/visualmatch/internal/database"
	"github.com/kozaktomas/visualmatch/internal/database/mock"
	"github.com/kozaktomas/visualmatch/internal/extractor"
	extractormock "github.com/kozaktomas/visualmatch/internal/extractor/mock"
	"github.com/kozaktomas/visualmatch/internal/matching"
)

type fixture struct {
	reg     *mock.MockRegistry
	ex      *extractormock.MockExtractor
	service *matching.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := mock.NewMockRegistry("pet")
	ex := extractormock.NewMockExtractor()
	return &fixture{reg: reg, ex: ex, service: matching.NewService("pet", ex, reg, nil)}
}

// addPending creates pending subjects in order. Ids must sort in creation order.
func (f *fixture) addPending(t *testing.T, ids ...string) {
	t.Helper()
	for i, id := range ids {
		u := "http://img.test/" + id
		_, err := f.reg.CreateSubject(context.Background(), id, u)
		require.NoError(t, err)
		vec := make([]float32, 8)
		vec[i%8] = 1
		f.ex.SetVector(u, vec...)
	}
}

func TestPipeline_FailureIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPending(t, "p1", "p2", "p3", "p4", "p5")
	f.ex.Fail("http://img.test/p3", extractor.ErrExtractionTimeout)

	outcomes, err := NewPipeline("pet", f.reg, f.service).Run(ctx, 50)
	require.NoError(t, err)
	require.Len(t, outcomes, 5)

	for i, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		assert.Equal(t, id, outcomes[i].SubjectID, "outcomes keep selection order")
	}
	assert.Equal(t, StatusFailed, outcomes[2].Status)
	assert.ErrorIs(t, outcomes[2].Err, extractor.ErrExtractionTimeout)
	assert.NotEmpty(t, outcomes[2].Error)

	succeededCount := 0
	for _, o := range outcomes {
		if o.Status == StatusSuccess {
			succeededCount++
		}
	}
	assert.Equal(t, 4, succeededCount)

	// The four successes are queryable, p3 is still pending.
	for _, id := range []string{"p1", "p2", "p4", "p5"} {
		s, err := f.reg.GetSubject(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, database.StatusFeatured, s.Status)
	}
	p3, err := f.reg.GetSubject(ctx, "p3")
	require.NoError(t, err)
	assert.Equal(t, database.StatusPending, p3.Status)

	matches, err := f.reg.Query(ctx, []float32{0, 0, 0, 1, 0, 0, 0, 0}, 0.9, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "p4", matches[0].SubjectID)
}

func TestPipeline_PanicIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPending(t, "p1", "p2", "p3", "p4", "p5")
	f.ex.Hook = func(_ context.Context, ref extractor.ImageRef) {
		if ref.URL == "http://img.test/p3" {
			panic("decoder exploded")
		}
	}

	var progressed []string
	p := NewPipeline("pet", f.reg, f.service,
		WithConcurrency(2),
		WithProgress(func(pr Progress) { progressed = append(progressed, pr.SubjectID) }))
	report, err := p.Execute(ctx, 50)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 5)
	assert.Equal(t, 4, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, progressed, 5)

	failedItem := report.Outcomes[2]
	assert.Equal(t, "p3", failedItem.SubjectID)
	assert.Equal(t, StatusFailed, failedItem.Status)
	assert.ErrorIs(t, failedItem.Err, ErrRegistrationPanicked)
	assert.Contains(t, failedItem.Error, "decoder exploded")

	// The keyed lock was released, so a later run can register p3.
	f.ex.Hook = nil
	outcomes, err := p.Run(ctx, 50)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "p3", outcomes[0].SubjectID)
	assert.Equal(t, StatusSuccess, outcomes[0].Status)
}

func TestPipeline_BatchSize(t *testing.T) {
	f := newFixture(t)
	f.addPending(t, "a", "b", "c")

	outcomes, err := NewPipeline("pet", f.reg, f.service).Run(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "a", outcomes[0].SubjectID)
	assert.Equal(t, "b", outcomes[1].SubjectID)

	// The next run picks up the remaining subject only.
	outcomes, err = NewPipeline("pet", f.reg, f.service).Run(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "c", outcomes[0].SubjectID)
}

func TestPipeline_NothingPending(t *testing.T) {
	f := newFixture(t)
	outcomes, err := NewPipeline("pet", f.reg, f.service).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Empty(t, f.ex.Calls())
}

func TestPipeline_ListFailure(t *testing.T) {
	f := newFixture(t)
	f.reg.ListPendingError = database.Unavailable(errors.New("connection refused"))

	_, err := NewPipeline("pet", f.reg, f.service).Run(context.Background(), 10)
	assert.ErrorIs(t, err, database.ErrIndexUnavailable)
}

func TestPipeline_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.addPending(t, "a", "b", "c")

	ctx, cancel := context.WithCancel(context.Background())
	f.ex.Hook = func(_ context.Context, ref extractor.ImageRef) {
		if ref.URL == "http://img.test/a" {
			cancel()
		}
	}

	outcomes, err := NewPipeline("pet", f.reg, f.service).Run(ctx, 10)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.Equal(t, StatusFailed, o.Status)
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
	assert.Equal(t, []string{"http://img.test/a"}, f.ex.Calls(), "remaining items must not reach the extractor")
}

func TestPipeline_Concurrency(t *testing.T) {
	f := newFixture(t)
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("s%02d", i)
	}
	f.addPending(t, ids...)

	var (
		mu       sync.Mutex
		progress []int
	)
	p := NewPipeline("pet", f.reg, f.service,
		WithConcurrency(4),
		WithProgress(func(pr Progress) {
			mu.Lock()
			progress = append(progress, pr.Current)
			mu.Unlock()
			assert.Equal(t, 20, pr.Total)
		}))

	report, err := p.Execute(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 20, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.NotEmpty(t, report.RunID)
	for i, o := range report.Outcomes {
		assert.Equal(t, ids[i], o.SubjectID)
	}

	require.Len(t, progress, 20)
	for i, n := range progress {
		assert.Equal(t, i+1, n)
	}
}

func TestNormalizeBatchSize(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, constants.DefaultBatchSize},
		{-5, constants.DefaultBatchSize},
		{1, 1},
		{50, 50},
		{constants.MaxBatchSize, constants.MaxBatchSize},
		{constants.MaxBatchSize + 1, constants.MaxBatchSize},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprint(tc.in), func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeBatchSize(tc.in))
		})
	}
}
