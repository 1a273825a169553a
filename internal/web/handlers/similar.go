package handlers

import (
	"net/http"

	"github.com/kozaktomas/visualmatch/internal/constants"
	"github.com/kozaktomas/visualmatch/internal/database"
	"github.com/kozaktomas/visualmatch/internal/web/middleware"
)

// SimilarResponse lists the subjects resembling a query photo.
type SimilarResponse struct {
	Kind      string           `json:"kind"`
	Threshold float64          `json:"threshold"`
	Limit     int              `json:"limit"`
	Results   []database.Match `json:"results"`
	Count     int              `json:"count"`
}

// FindSimilar ranks registered subjects of the kind against the posted photo.
// Threshold and limit default to the kind's settings.
func FindSimilar(w http.ResponseWriter, r *http.Request) {
	e := middleware.MustGetEngine(r.Context(), w)
	if e == nil {
		return
	}

	req, ref, err := parseImageRequest(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	threshold := e.Kind.Threshold
	if threshold == 0 {
		threshold = constants.DefaultSimilarityThreshold
	}
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	limit := e.Kind.Limit
	if limit == 0 {
		limit = constants.DefaultSimilarLimit
	}
	if req.Limit != nil {
		limit = *req.Limit
	}

	matches, err := e.Service.FindSimilar(r.Context(), ref, threshold, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, SimilarResponse{
		Kind:      e.Kind.Name,
		Threshold: threshold,
		Limit:     limit,
		Results:   matches,
		Count:     len(matches),
	})
}
