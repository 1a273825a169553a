// Package matching registers subjects into a similarity index and finds look-alikes
// for a query photo.
package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kozaktomas/visualmatch/internal/colors"
	"github.com/kozaktomas/visualmatch/internal/constants"
	"github.com/kozaktomas/visualmatch/internal/database"
	"github.com/kozaktomas/visualmatch/internal/extractor"
	"github.com/kozaktomas/visualmatch/internal/logger"
	"github.com/kozaktomas/visualmatch/internal/metrics"
	"go.uber.org/zap"
)

// ErrInvalidArgument is returned for out-of-range query parameters.
var ErrInvalidArgument = errors.New("invalid argument")

// Extractor turns an image reference into a feature vector and a color sample.
type Extractor interface {
	Extract(ctx context.Context, ref extractor.ImageRef) (*extractor.Features, error)
}

// Service wires an Extractor to the similarity index of one subject kind.
type Service struct {
	kind      string
	extractor Extractor
	index     database.SimilarityIndex
	logger    *zap.Logger
	locks     *keyedMutex
}

// NewService creates the matching service for kind. A nil logger disables logging.
func NewService(kind string, ex Extractor, idx database.SimilarityIndex, l *zap.Logger) *Service {
	return &Service{
		kind:      kind,
		extractor: ex,
		index:     idx,
		logger:    logger.OrNop(l).With(zap.String("kind", kind)),
		locks:     newKeyedMutex(),
	}
}

// Kind returns the subject kind served.
func (s *Service) Kind() string {
	return s.kind
}

// RegisterSubject extracts features from ref, names the dominant colors and stores
// both under subjectID, replacing any earlier registration. Nothing is written when
// extraction fails or ctx ends before the insert. A photo without color data is
// registered without a label.
func (s *Service) RegisterSubject(ctx context.Context, subjectID string, ref extractor.ImageRef) error {
	start := time.Now()
	err := s.registerSubject(ctx, subjectID, ref)
	metrics.RegistrationsTotal.WithLabelValues(s.kind, metrics.Status(err)).Inc()

	if err != nil {
		s.logger.Warn("subject registration failed",
			zap.String("subject_id", subjectID),
			zap.Error(err))
		return err
	}
	s.logger.Debug("subject registered",
		zap.String("subject_id", subjectID),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (s *Service) registerSubject(ctx context.Context, subjectID string, ref extractor.ImageRef) error {
	if subjectID == "" {
		return database.ErrInvalidSubjectID
	}

	unlock := s.locks.Lock(subjectID)
	defer unlock()

	features, err := s.extractor.Extract(ctx, ref)
	if err != nil {
		return fmt.Errorf("extract features for %s: %w", subjectID, err)
	}

	label, err := colors.Classify(features.Colors)
	if err != nil {
		if !errors.Is(err, colors.ErrNoColorData) {
			return fmt.Errorf("classify colors for %s: %w", subjectID, err)
		}
		s.logger.Debug("no color data, registering without label", zap.String("subject_id", subjectID))
		label = ""
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	rec := database.Record{
		SubjectID: subjectID,
		Vector:    features.Vector,
		Colors:    features.Colors,
		Label:     label,
	}
	if err := s.index.Insert(ctx, rec); err != nil {
		return fmt.Errorf("store features for %s: %w", subjectID, err)
	}
	return nil
}

// FindSimilar extracts features from ref and returns registered subjects scoring at
// least threshold, best first, at most limit entries. It never writes.
func (s *Service) FindSimilar(ctx context.Context, ref extractor.ImageRef, threshold float64, limit int) ([]database.Match, error) {
	matches, err := s.findSimilar(ctx, ref, threshold, limit)
	metrics.QueriesTotal.WithLabelValues(s.kind, metrics.Status(err)).Inc()
	if err != nil {
		return nil, err
	}
	metrics.QueryResults.WithLabelValues(s.kind).Observe(float64(len(matches)))
	return matches, nil
}

func (s *Service) findSimilar(ctx context.Context, ref extractor.ImageRef, threshold float64, limit int) ([]database.Match, error) {
	if math.IsNaN(threshold) || threshold < -1 || threshold > 1 {
		return nil, fmt.Errorf("%w: threshold %v outside [-1, 1]", ErrInvalidArgument, threshold)
	}
	if limit < 0 || limit > constants.MaxSimilarLimit {
		return nil, fmt.Errorf("%w: limit %d outside [0, %d]", ErrInvalidArgument, limit, constants.MaxSimilarLimit)
	}

	features, err := s.extractor.Extract(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("extract query features: %w", err)
	}

	matches, err := s.index.Query(ctx, features.Vector, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("query %s index: %w", s.kind, err)
	}
	return matches, nil
}
