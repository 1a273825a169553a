package database

import (
	"time"

	"github.com/kozaktomas/visualmatch/internal/colors"
)

// Status is the feature state of a subject.
type Status string

const (
	// StatusPending marks a subject that has no feature vector yet.
	StatusPending Status = "pending"
	// StatusFeatured marks a subject whose vector and colors are stored.
	StatusFeatured Status = "featured"
)

// Subject is an entity being matched, identified by (Kind, ID)
type Subject struct {
	Kind       string        `json:"kind"`
	ID         string        `json:"id"`
	ImageURL   string        `json:"image_url,omitempty"`
	Status     Status        `json:"status"`
	Vector     []float32     `json:"-"`
	Colors     colors.Sample `json:"-"`
	Label      colors.Label  `json:"color_label,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	FeaturedAt *time.Time    `json:"featured_at,omitempty"`
}

// Record is the derived feature set written for one subject.
type Record struct {
	SubjectID string
	Vector    []float32
	Colors    colors.Sample
	Label     colors.Label
}

// Match is one ranked query result. Score is the cosine similarity in [-1, 1].
type Match struct {
	SubjectID string  `json:"subject_id"`
	Score     float64 `json:"score"`
}
