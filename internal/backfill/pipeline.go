// Package backfill registers pending subjects in bulk and keeps stored color labels
// in line with the classifier.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/visualmatch/internal/constants"
	"github.com/kozaktomas/visualmatch/internal/database"
	"github.com/kozaktomas/visualmatch/internal/extractor"
	"github.com/kozaktomas/visualmatch/internal/logger"
	"github.com/kozaktomas/visualmatch/internal/metrics"
)

// ErrRegistrationPanicked marks an item whose registration panicked. The panic is
// recorded as that item's failure and the run continues.
var ErrRegistrationPanicked = errors.New("registration panicked")

// Registrar registers one subject from an image reference.
type Registrar interface {
	RegisterSubject(ctx context.Context, subjectID string, ref extractor.ImageRef) error
}

// Status is the result of one backfill item.
type Status string

// Backfill item statuses.
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Outcome is the result of registering one pending subject.
type Outcome struct {
	SubjectID string `json:"subject_id"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
	Err       error  `json:"-"`
}

func succeeded(id string) Outcome {
	return Outcome{SubjectID: id, Status: StatusSuccess}
}

func failed(id string, err error) Outcome {
	return Outcome{SubjectID: id, Status: StatusFailed, Error: err.Error(), Err: err}
}

// Report describes one backfill run.
type Report struct {
	RunID     string        `json:"run_id"`
	Kind      string        `json:"kind"`
	Outcomes  []Outcome     `json:"results"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration_ns"`
}

// Progress is reported after every finished item.
type Progress struct {
	Current   int
	Total     int
	SubjectID string
	Status    Status
}

// Pipeline backfills the pending subjects of one kind.
type Pipeline struct {
	kind        string
	subjects    database.SubjectReader
	registrar   Registrar
	concurrency int
	onProgress  func(Progress)
	logger      *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConcurrency sets how many items are processed at once. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		p.concurrency = max(n, 1)
	}
}

// WithProgress sets a callback invoked after each item.
func WithProgress(fn func(Progress)) Option {
	return func(p *Pipeline) {
		p.onProgress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger.OrNop(l)
	}
}

// NewPipeline creates a backfill pipeline for kind.
func NewPipeline(kind string, subjects database.SubjectReader, registrar Registrar, opts ...Option) *Pipeline {
	p := &Pipeline{
		kind:        kind,
		subjects:    subjects,
		registrar:   registrar,
		concurrency: 1,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("kind", kind))
	return p
}

// Kind returns the subject kind this pipeline serves.
func (p *Pipeline) Kind() string {
	return p.kind
}

// Run registers up to batchSize pending subjects and returns one outcome per
// subject in selection order. The error is set only when listing fails.
func (p *Pipeline) Run(ctx context.Context, batchSize int) ([]Outcome, error) {
	report, err := p.Execute(ctx, batchSize)
	if err != nil {
		return nil, err
	}
	return report.Outcomes, nil
}

// Execute is Run with run metadata.
func (p *Pipeline) Execute(ctx context.Context, batchSize int) (*Report, error) {
	batchSize = NormalizeBatchSize(batchSize)
	start := time.Now()
	runID := uuid.NewString()
	log := p.logger.With(zap.String("run_id", runID))

	pending, err := p.subjects.ListPending(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("list pending %s subjects: %w", p.kind, err)
	}
	log.Info("backfill started", zap.Int("pending", len(pending)), zap.Int("concurrency", p.concurrency))

	outcomes := make([]Outcome, len(pending))

	var (
		progressMu sync.Mutex
		done       int
	)
	finish := func(i int, o Outcome) {
		outcomes[i] = o
		metrics.BackfillOutcomesTotal.WithLabelValues(p.kind, string(o.Status)).Inc()
		if o.Err != nil {
			log.Warn("backfill item failed", zap.String("subject_id", o.SubjectID), zap.Error(o.Err))
		}
		if p.onProgress == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		done++
		p.onProgress(Progress{Current: done, Total: len(pending), SubjectID: o.SubjectID, Status: o.Status})
	}

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, s := range pending {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					finish(i, failed(s.ID, fmt.Errorf("register %s: %w: %v", s.ID, ErrRegistrationPanicked, r)))
				}
			}()
			if err := ctx.Err(); err != nil {
				finish(i, failed(s.ID, err))
				return nil
			}
			if err := p.registrar.RegisterSubject(ctx, s.ID, extractor.ImageRef{URL: s.ImageURL}); err != nil {
				finish(i, failed(s.ID, err))
				return nil
			}
			finish(i, succeeded(s.ID))
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{
		RunID:    runID,
		Kind:     p.kind,
		Outcomes: outcomes,
		Duration: time.Since(start),
	}
	for _, o := range outcomes {
		if o.Status == StatusSuccess {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	log.Info("backfill finished",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// NormalizeBatchSize applies the default for non-positive sizes and the upper cap.
func NormalizeBatchSize(n int) int {
	if n <= 0 {
		return constants.DefaultBatchSize
	}
	return min(n, constants.MaxBatchSize)
}
