package database

import (
	"context"

	"github.com/kozaktomas/visualmatch/internal/colors"
)

// SimilarityIndex stores one feature vector per subject and answers thresholded
// nearest-neighbor queries by cosine similarity.
type SimilarityIndex interface {
	// Insert stores or replaces the vector, colors and label of a subject atomically
	Insert(ctx context.Context, rec Record) error
	// Query returns at most limit subjects scoring at least threshold, best first
	Query(ctx context.Context, vector []float32, threshold float64, limit int) ([]Match, error)
	// Delete removes a subject together with its vector and colors
	Delete(ctx context.Context, subjectID string) error
	// Count returns the number of subjects that have a vector
	Count(ctx context.Context) (int, error)
	// Dimension returns the established vector length, 0 while unset
	Dimension(ctx context.Context) (int, error)
}

// SubjectReader provides read-only access to subjects
type SubjectReader interface {
	// GetSubject returns a subject, ErrSubjectNotFound if it does not exist
	GetSubject(ctx context.Context, subjectID string) (*Subject, error)
	// ListPending returns subjects without a vector that carry an image reference, oldest first
	ListPending(ctx context.Context, limit int) ([]Subject, error)
	// ListFeatured returns subjects with a vector ordered by id, starting after afterID
	ListFeatured(ctx context.Context, afterID string, limit int) ([]Subject, error)
}

// SubjectWriter provides write access to subjects
type SubjectWriter interface {
	SubjectReader

	// CreateSubject registers a pending subject or updates the image reference of an existing one
	CreateSubject(ctx context.Context, subjectID, imageURL string) (*Subject, error)
	// UpdateLabel replaces the stored color label of a subject
	UpdateLabel(ctx context.Context, subjectID string, label colors.Label) error
}

// Registry is a similarity index that also owns the subject rows.
type Registry interface {
	SimilarityIndex
	SubjectWriter
}
