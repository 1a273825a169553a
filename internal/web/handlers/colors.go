package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/kozaktomas/visualmatch/internal/colors"
)

// ClassifyRequest is a color sample as the extractor reports it.
type ClassifyRequest struct {
	Colors           [][]float64 `json:"colors"`
	ColorPercentages []float64   `json:"color_percentages"`
}

// ClassifyResponse names a color sample.
type ClassifyResponse struct {
	Label     colors.Label `json:"label"`
	Primary   colors.Label `json:"primary"`
	Secondary colors.Label `json:"secondary,omitempty"`
}

// ClassifyColors names the dominant colors of a posted sample.
func ClassifyColors(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	sample, err := colors.NewSample(req.Colors, req.ColorPercentages)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	label, err := colors.Classify(sample)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	primary, secondary, _ := label.Split()
	respondJSON(w, http.StatusOK, ClassifyResponse{Label: label, Primary: primary, Secondary: secondary})
}
