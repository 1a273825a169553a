package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/kozaktomas/visualmatch/internal/colors"
	"github.com/kozaktomas/visualmatch/internal/constants"
	"github.com/kozaktomas/visualmatch/internal/database"
	"github.com/kozaktomas/visualmatch/internal/extractor"
	"github.com/kozaktomas/visualmatch/internal/lock"
	"github.com/kozaktomas/visualmatch/internal/matching"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// imageFormField is the multipart field carrying an uploaded photo.
const imageFormField = "image"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// errorStatus maps engine errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, extractor.ErrExtractionTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, extractor.ErrExtractionRejected),
		errors.Is(err, extractor.ErrMalformedResponse),
		errors.Is(err, extractor.ErrExtractorUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, extractor.ErrExtractorNotReady),
		errors.Is(err, database.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, database.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, database.ErrSubjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, lock.ErrHeld):
		return http.StatusConflict
	case errors.Is(err, database.ErrInvalidSubjectID),
		errors.Is(err, matching.ErrInvalidArgument),
		errors.Is(err, extractor.ErrEmptyImageRef),
		errors.Is(err, colors.ErrNoColorData):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError maps err to a status and sends it. Internal errors are not echoed.
func respondServiceError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	respondError(w, status, msg)
}

// imageRequest is the JSON form of a request that carries an image reference.
type imageRequest struct {
	ImageURL  string   `json:"image_url"`
	Threshold *float64 `json:"threshold,omitempty"`
	Limit     *int     `json:"limit,omitempty"`
}

// parseImageRequest reads either a JSON body with image_url or a multipart form with
// the photo in the "image" field. Form values threshold and limit are read as well.
func parseImageRequest(w http.ResponseWriter, r *http.Request) (imageRequest, extractor.ImageRef, error) {
	var req imageRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, constants.MaxImageSize+constants.MaxMultipartMemory)
		if err := r.ParseMultipartForm(constants.MaxMultipartMemory); err != nil {
			return req, extractor.ImageRef{}, errors.New("failed to parse multipart form")
		}
		file, _, err := r.FormFile(imageFormField)
		if err != nil {
			return req, extractor.ImageRef{}, errors.New("image file is required")
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, constants.MaxImageSize+1))
		if err != nil {
			return req, extractor.ImageRef{}, errors.New("failed to read image")
		}
		if len(data) > constants.MaxImageSize {
			return req, extractor.ImageRef{}, fmt.Errorf("image exceeds %d bytes", constants.MaxImageSize)
		}
		if len(data) == 0 {
			return req, extractor.ImageRef{}, errors.New("image file is empty")
		}
		if err := parseFormNumbers(r, &req); err != nil {
			return req, extractor.ImageRef{}, err
		}
		return req, extractor.ImageRef{Data: data}, nil
	}

	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		return req, extractor.ImageRef{}, errors.New(errInvalidRequestBody)
	}
	if req.ImageURL == "" {
		return req, extractor.ImageRef{}, errors.New("image_url is required")
	}
	if u, err := url.Parse(req.ImageURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return req, extractor.ImageRef{}, errors.New("image_url must be an absolute http(s) URL")
	}
	return req, extractor.ImageRef{URL: req.ImageURL}, nil
}

func parseFormNumbers(r *http.Request, req *imageRequest) error {
	if v := r.FormValue("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.New("threshold must be a number")
		}
		req.Threshold = &f
	}
	if v := r.FormValue("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("limit must be an integer")
		}
		req.Limit = &n
	}
	return nil
}
