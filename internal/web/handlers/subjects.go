package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/visualmatch/internal/colors"
	"github.com/kozaktomas/visualmatch/internal/database"
	"github.com/kozaktomas/visualmatch/internal/logger"
	"github.com/kozaktomas/visualmatch/internal/web/middleware"
)

// SubjectsHandler manages the subjects of a kind.
type SubjectsHandler struct {
	logger *zap.Logger
}

// NewSubjectsHandler creates a new subjects handler.
func NewSubjectsHandler(l *zap.Logger) *SubjectsHandler {
	return &SubjectsHandler{logger: logger.OrNop(l)}
}

// CreateSubjectRequest registers a pending subject.
type CreateSubjectRequest struct {
	SubjectID string `json:"subject_id"`
	ImageURL  string `json:"image_url"`
}

// SubjectResponse is a subject with its stored color sample.
type SubjectResponse struct {
	*database.Subject
	DominantColors   []colors.RGB `json:"dominant_colors,omitempty"`
	ColorPercentages []float64    `json:"color_percentages,omitempty"`
}

func newSubjectResponse(s *database.Subject) SubjectResponse {
	return SubjectResponse{
		Subject:          s,
		DominantColors:   s.Colors.Colors(),
		ColorPercentages: s.Colors.Fractions(),
	}
}

// Create registers a pending subject that the backfill will pick up.
func (h *SubjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	e := middleware.MustGetEngine(r.Context(), w)
	if e == nil {
		return
	}

	var req CreateSubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.SubjectID == "" {
		respondError(w, http.StatusBadRequest, "subject_id is required")
		return
	}

	s, err := e.Registry.CreateSubject(r.Context(), req.SubjectID, req.ImageURL)
	if err != nil {
		h.logger.Error("create subject failed", zap.String("subject_id", sanitizeForLog(req.SubjectID)), zap.Error(err))
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, newSubjectResponse(s))
}

// Get returns one subject.
func (h *SubjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	e := middleware.MustGetEngine(r.Context(), w)
	if e == nil {
		return
	}

	s, err := e.Registry.GetSubject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSubjectResponse(s))
}

// Delete removes a subject and its features.
func (h *SubjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	e := middleware.MustGetEngine(r.Context(), w)
	if e == nil {
		return
	}

	id := chi.URLParam(r, "id")
	if err := e.Registry.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	h.logger.Info("subject deleted", zap.String("kind", e.Kind.Name), zap.String("subject_id", sanitizeForLog(id)))
	w.WriteHeader(http.StatusNoContent)
}

// Register extracts features from the posted photo (JSON image_url or multipart
// upload) and stores them for the subject.
func (h *SubjectsHandler) Register(w http.ResponseWriter, r *http.Request) {
	e := middleware.MustGetEngine(r.Context(), w)
	if e == nil {
		return
	}

	_, ref, err := parseImageRequest(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	if err := e.Service.RegisterSubject(r.Context(), id, ref); err != nil {
		respondServiceError(w, err)
		return
	}

	s, err := e.Registry.GetSubject(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSubjectResponse(s))
}
