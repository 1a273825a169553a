package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/visualmatch/internal/backfill"
	"github.com/kozaktomas/visualmatch/internal/config"
	"github.com/kozaktomas/visualmatch/internal/database/mock"
	"github.com/kozaktomas/visualmatch/internal/engine"
	extractormock "github.com/kozaktomas/visualmatch/internal/extractor/mock"
	"github.com/kozaktomas/visualmatch/internal/matching"
	"github.com/kozaktomas/visualmatch/internal/web/middleware"
)

// testEngine bundles an engine with the mocks behind it
type testEngine struct {
	*engine.Engine
	reg *mock.MockRegistry
	ex  *extractormock.MockExtractor
}

// newTestEngine creates a pet engine backed by mocks
func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	reg := mock.NewMockRegistry("pet")
	ex := extractormock.NewMockExtractor()
	svc := matching.NewService("pet", ex, reg, nil)
	return &testEngine{
		Engine: &engine.Engine{
			Kind:     config.KindConfig{Name: "pet", Threshold: 0.7, Limit: 5},
			Registry: reg,
			Service:  svc,
			Pipeline: backfill.NewPipeline("pet", reg, svc),
		},
		reg: reg,
		ex:  ex,
	}
}

// requestWithEngine creates a request with the engine in context and chi URL parameters
func requestWithEngine(method, path string, body io.Reader, e *engine.Engine, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, path, body)
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	return req.WithContext(middleware.SetEngineInContext(ctx, e))
}

// jsonBody encodes v as a request body
func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	return &buf
}

// multipartBody builds a form with the image field and optional extra values
func multipartBody(t *testing.T, image []byte, values map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if image != nil {
		part, err := w.CreateFormFile(imageFormField, "photo.jpg")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		_, _ = part.Write(image)
	}
	for k, v := range values {
		_ = w.WriteField(k, v)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
