package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/visualmatch/internal/colors"
	"github.com/kozaktomas/visualmatch/internal/database"
	"github.com/pgvector/pgvector-go"
)

// SubjectRepository stores the subjects of one kind and their features in the
// subjects table. Similarity is computed in the database with pgvector's <=> operator.
type SubjectRepository struct {
	pool      *Pool
	kind      string
	pinnedDim int
}

var _ database.Registry = (*SubjectRepository)(nil)

// NewSubjectRepository creates a repository for kind. A positive pinnedDim seeds the
// dimension of an empty vector space instead of the first inserted vector.
func NewSubjectRepository(pool *Pool, kind string, pinnedDim int) *SubjectRepository {
	return &SubjectRepository{pool: pool, kind: kind, pinnedDim: pinnedDim}
}

// Kind returns the subject kind served by the repository.
func (r *SubjectRepository) Kind() string {
	return r.kind
}

const subjectColumns = `subject_id, image_url, embedding IS NOT NULL, dominant_colors,
	color_percentages, color_label, created_at, featured_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SubjectRepository) scanSubject(row rowScanner, extra ...any) (*database.Subject, error) {
	s := database.Subject{Kind: r.kind}
	var (
		imageURL   sql.NullString
		featured   bool
		rgbJSON    []byte
		pctJSON    []byte
		label      sql.NullString
		featuredAt sql.NullTime
	)

	dest := append([]any{&s.ID, &imageURL, &featured, &rgbJSON, &pctJSON, &label, &s.CreatedAt, &featuredAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	s.ImageURL = imageURL.String
	s.Label = colors.Label(label.String)
	s.Status = database.StatusPending
	if featured {
		s.Status = database.StatusFeatured
	}
	if featuredAt.Valid {
		t := featuredAt.Time
		s.FeaturedAt = &t
	}

	sample, err := decodeColors(rgbJSON, pctJSON)
	if err != nil {
		return nil, fmt.Errorf("subject %s: %w", s.ID, err)
	}
	s.Colors = sample
	return &s, nil
}

// encodeColors splits a sample into the dominant_colors and color_percentages columns.
func encodeColors(sample colors.Sample) (rgbJSON, pctJSON []byte, err error) {
	if len(sample) == 0 {
		return nil, nil, nil
	}
	rgbs := make([][3]int, len(sample))
	for i, sw := range sample {
		rgbs[i] = [3]int{int(sw.Color[0]), int(sw.Color[1]), int(sw.Color[2])}
	}
	if rgbJSON, err = json.Marshal(rgbs); err != nil {
		return nil, nil, fmt.Errorf("marshal colors: %w", err)
	}
	if pctJSON, err = json.Marshal(sample.Fractions()); err != nil {
		return nil, nil, fmt.Errorf("marshal color percentages: %w", err)
	}
	return rgbJSON, pctJSON, nil
}

func decodeColors(rgbJSON, pctJSON []byte) (colors.Sample, error) {
	if len(rgbJSON) == 0 {
		return nil, nil
	}
	var rgbs [][]float64
	if err := json.Unmarshal(rgbJSON, &rgbs); err != nil {
		return nil, fmt.Errorf("decode colors: %w", err)
	}
	var fractions []float64
	if len(pctJSON) > 0 {
		if err := json.Unmarshal(pctJSON, &fractions); err != nil {
			return nil, fmt.Errorf("decode color percentages: %w", err)
		}
	}
	return colors.NewSample(rgbs, fractions)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > database.MaxListLimit {
		return database.MaxListLimit
	}
	return limit
}

// Insert implements database.SimilarityIndex. The vector space row and the subject row
// are written in one transaction.
func (r *SubjectRepository) Insert(ctx context.Context, rec database.Record) error {
	if rec.SubjectID == "" {
		return database.ErrInvalidSubjectID
	}
	if len(rec.Vector) == 0 {
		dim, err := r.Dimension(ctx)
		if err != nil {
			return err
		}
		return &database.DimensionMismatchError{Expected: dim, Actual: 0}
	}

	rgbJSON, pctJSON, err := encodeColors(rec.Colors)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	seed := len(rec.Vector)
	if r.pinnedDim > 0 {
		seed = r.pinnedDim
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vector_spaces (kind, dim) VALUES ($1, $2) ON CONFLICT (kind) DO NOTHING`,
		r.kind, seed,
	); err != nil {
		return fmt.Errorf("register vector space: %w", classify(err))
	}

	var dim int
	if err := tx.QueryRowContext(ctx, `SELECT dim FROM vector_spaces WHERE kind = $1`, r.kind).Scan(&dim); err != nil {
		return fmt.Errorf("read vector space: %w", classify(err))
	}
	if dim != len(rec.Vector) {
		return &database.DimensionMismatchError{Expected: dim, Actual: len(rec.Vector)}
	}

	query := `
		INSERT INTO subjects (kind, subject_id, embedding, dominant_colors, color_percentages, color_label, featured_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (kind, subject_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			dominant_colors = EXCLUDED.dominant_colors,
			color_percentages = EXCLUDED.color_percentages,
			color_label = EXCLUDED.color_label,
			featured_at = EXCLUDED.featured_at
	`
	if _, err := tx.ExecContext(ctx, query,
		r.kind, rec.SubjectID, pgvector.NewVector(rec.Vector), rgbJSON, pctJSON, nullString(string(rec.Label)),
	); err != nil {
		return fmt.Errorf("upsert subject features: %w", classify(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit subject features: %w", classify(err))
	}
	return nil
}

// Query implements database.SimilarityIndex. Zero-norm rows are excluded before scoring.
func (r *SubjectRepository) Query(ctx context.Context, vector []float32, threshold float64, limit int) ([]database.Match, error) {
	dim, err := r.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return []database.Match{}, nil
	}
	if len(vector) != dim {
		return nil, &database.DimensionMismatchError{Expected: dim, Actual: len(vector)}
	}
	if limit <= 0 || database.IsZeroVector(vector) {
		return []database.Match{}, nil
	}

	query := `
		SELECT subject_id, similarity FROM (
			SELECT subject_id, 1 - (embedding <=> $2::vector) AS similarity
			FROM subjects
			WHERE kind = $1 AND embedding IS NOT NULL AND vector_norm(embedding) > 0
		) scored
		WHERE similarity >= $3
		ORDER BY similarity DESC, subject_id ASC
		LIMIT $4
	`
	rows, err := r.pool.Query(ctx, query, r.kind, pgvector.NewVector(vector), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("query similar subjects: %w", err)
	}
	defer rows.Close()

	matches := make([]database.Match, 0, min(limit, 64))
	for rows.Next() {
		var m database.Match
		if err := rows.Scan(&m.SubjectID, &m.Score); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.Score = max(-1, min(1, m.Score))
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", classify(err))
	}
	return matches, nil
}

// Delete implements database.SimilarityIndex. The vector and colors live on the
// subject row and go with it.
func (r *SubjectRepository) Delete(ctx context.Context, subjectID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM subjects WHERE kind = $1 AND subject_id = $2`, r.kind, subjectID)
	if err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	if n == 0 {
		return database.ErrSubjectNotFound
	}
	return nil
}

// Count implements database.SimilarityIndex.
func (r *SubjectRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM subjects WHERE kind = $1 AND embedding IS NOT NULL`, r.kind,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count subjects: %w", classify(err))
	}
	return count, nil
}

// Dimension implements database.SimilarityIndex. Before any insert it reports the
// pinned dimension, if any.
func (r *SubjectRepository) Dimension(ctx context.Context) (int, error) {
	var dim int
	err := r.pool.QueryRow(ctx, `SELECT dim FROM vector_spaces WHERE kind = $1`, r.kind).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return r.pinnedDim, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read vector space: %w", classify(err))
	}
	return dim, nil
}

// CreateSubject implements database.SubjectWriter. An existing subject keeps its
// features and gets the new image reference.
func (r *SubjectRepository) CreateSubject(ctx context.Context, subjectID, imageURL string) (*database.Subject, error) {
	if subjectID == "" {
		return nil, database.ErrInvalidSubjectID
	}

	query := `
		INSERT INTO subjects (kind, subject_id, image_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, subject_id) DO UPDATE SET image_url = EXCLUDED.image_url
		RETURNING ` + subjectColumns

	s, err := r.scanSubject(r.pool.QueryRow(ctx, query, r.kind, subjectID, nullString(imageURL)))
	if err != nil {
		return nil, fmt.Errorf("create subject: %w", classify(err))
	}
	return s, nil
}

// GetSubject implements database.SubjectReader.
func (r *SubjectRepository) GetSubject(ctx context.Context, subjectID string) (*database.Subject, error) {
	query := `SELECT ` + subjectColumns + `, embedding FROM subjects WHERE kind = $1 AND subject_id = $2`

	var raw sql.Null[pgvector.Vector]
	s, err := r.scanSubject(r.pool.QueryRow(ctx, query, r.kind, subjectID), &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrSubjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", classify(err))
	}
	if raw.Valid {
		s.Vector = raw.V.Slice()
	}
	return s, nil
}

// ListPending implements database.SubjectReader.
func (r *SubjectRepository) ListPending(ctx context.Context, limit int) ([]database.Subject, error) {
	query := `
		SELECT ` + subjectColumns + `
		FROM subjects
		WHERE kind = $1 AND embedding IS NULL AND image_url IS NOT NULL
		ORDER BY created_at, subject_id
		LIMIT $2
	`
	return r.list(ctx, "list pending subjects", query, r.kind, clampLimit(limit))
}

// ListFeatured implements database.SubjectReader.
func (r *SubjectRepository) ListFeatured(ctx context.Context, afterID string, limit int) ([]database.Subject, error) {
	query := `
		SELECT ` + subjectColumns + `
		FROM subjects
		WHERE kind = $1 AND embedding IS NOT NULL AND subject_id > $2
		ORDER BY subject_id
		LIMIT $3
	`
	return r.list(ctx, "list featured subjects", query, r.kind, afterID, clampLimit(limit))
}

func (r *SubjectRepository) list(ctx context.Context, op, query string, args ...any) ([]database.Subject, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	subjects := make([]database.Subject, 0)
	for rows.Next() {
		s, err := r.scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		subjects = append(subjects, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return subjects, nil
}

// UpdateLabel implements database.SubjectWriter.
func (r *SubjectRepository) UpdateLabel(ctx context.Context, subjectID string, label colors.Label) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE subjects SET color_label = $3 WHERE kind = $1 AND subject_id = $2`,
		r.kind, subjectID, nullString(string(label)),
	)
	if err != nil {
		return fmt.Errorf("update color label: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update color label: %w", err)
	}
	if n == 0 {
		return database.ErrSubjectNotFound
	}
	return nil
}
