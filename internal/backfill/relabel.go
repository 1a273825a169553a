package backfill

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kozaktomas/visualmatch/internal/colors"
	"github.com/kozaktomas/visualmatch/internal/constants"
	"github.com/kozaktomas/visualmatch/internal/database"
	"github.com/kozaktomas/visualmatch/internal/logger"
)

// RelabelStats counts what a relabel pass did.
type RelabelStats struct {
	Scanned   int `json:"scanned"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"` // no stored colors
	Failed    int `json:"failed"`
}

// LabelChange is one label the pass rewrote (or would rewrite in dry-run mode).
type LabelChange struct {
	SubjectID string       `json:"subject_id"`
	From      colors.Label `json:"from"`
	To        colors.Label `json:"to"`
}

// Relabeler recomputes color labels from stored color samples.
type Relabeler struct {
	subjects database.SubjectWriter
	pageSize int
	dryRun   bool
	logger   *zap.Logger
}

// NewRelabeler creates a relabeler. In dry-run mode no label is written.
func NewRelabeler(subjects database.SubjectWriter, dryRun bool, l *zap.Logger) *Relabeler {
	return &Relabeler{
		subjects: subjects,
		pageSize: constants.RelabelPageSize,
		dryRun:   dryRun,
		logger:   logger.OrNop(l),
	}
}

// Run walks every featured subject and updates labels that differ from what the
// classifier now returns for the stored colors. Per-subject write failures are counted
// and do not stop the pass; listing failures do.
func (r *Relabeler) Run(ctx context.Context) (*RelabelStats, []LabelChange, error) {
	stats := &RelabelStats{}
	var changes []LabelChange

	after := ""
	for {
		page, err := r.subjects.ListFeatured(ctx, after, r.pageSize)
		if err != nil {
			return stats, changes, fmt.Errorf("list featured subjects after %q: %w", after, err)
		}

		for _, s := range page {
			stats.Scanned++

			label, err := colors.Classify(s.Colors)
			if errors.Is(err, colors.ErrNoColorData) {
				stats.Skipped++
				continue
			}
			if err != nil {
				stats.Failed++
				continue
			}
			if label == s.Label {
				stats.Unchanged++
				continue
			}

			change := LabelChange{SubjectID: s.ID, From: s.Label, To: label}
			if !r.dryRun {
				if err := r.subjects.UpdateLabel(ctx, s.ID, label); err != nil {
					stats.Failed++
					r.logger.Warn("label update failed", zap.String("subject_id", s.ID), zap.Error(err))
					continue
				}
			}
			stats.Changed++
			changes = append(changes, change)
			r.logger.Debug("label changed",
				zap.String("subject_id", s.ID),
				zap.Stringer("from", change.From),
				zap.Stringer("to", change.To))
		}

		if len(page) < r.pageSize {
			break
		}
		after = page[len(page)-1].ID
	}

	r.logger.Info("relabel finished",
		zap.Int("scanned", stats.Scanned),
		zap.Int("changed", stats.Changed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Bool("dry_run", r.dryRun))
	return stats, changes, nil
}
