// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Backfill constants
const (
	// DefaultBatchSize is the number of pending subjects processed per backfill run
	DefaultBatchSize = 50

	// MaxBatchSize caps a single backfill run
	MaxBatchSize = 500

	// BackfillLockTTL bounds how long a crashed runner can hold the backfill lock
	BackfillLockTTL = 15 * time.Minute

	// RelabelPageSize is the number of featured subjects read per relabel page
	RelabelPageSize = 200
)

// Similarity search constants
const (
	// DefaultSimilarityThreshold is used when a kind does not configure one
	DefaultSimilarityThreshold = 0.7

	// DefaultSimilarLimit is used when a kind does not configure one
	DefaultSimilarLimit = 10

	// MaxSimilarLimit caps the number of matches a caller may request
	MaxSimilarLimit = 100
)

// Extractor constants
const (
	// DefaultExtractorTimeout bounds one feature extraction round trip
	DefaultExtractorTimeout = 30 * time.Second

	// MaxImageSize is the maximum image upload size in bytes (20MB)
	MaxImageSize = 20 << 20

	// MaxResponseSize caps extractor response bodies
	MaxResponseSize = 8 << 20
)
