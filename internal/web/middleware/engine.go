package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/visualmatch/internal/engine"
)

type contextKey string

const engineContextKey contextKey = "engine"

// EngineProvider resolves the engine of a subject kind.
type EngineProvider interface {
	Get(kind string) (*engine.Engine, bool)
}

// WithEngine is middleware that resolves the {kind} URL parameter to its engine and
// adds it to the context. Unknown kinds get a 404.
func WithEngine(engines EngineProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			kind := chi.URLParam(r, "kind")
			e, ok := engines.Get(kind)
			if !ok {
				writeJSONError(w, http.StatusNotFound, "unknown subject kind")
				return
			}

			ctx := SetEngineInContext(r.Context(), e)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SetEngineInContext stores e in ctx.
func SetEngineInContext(ctx context.Context, e *engine.Engine) context.Context {
	return context.WithValue(ctx, engineContextKey, e)
}

// GetEngineFromContext retrieves the engine from the request context.
// Returns nil if no engine is available.
func GetEngineFromContext(ctx context.Context) *engine.Engine {
	e, ok := ctx.Value(engineContextKey).(*engine.Engine)
	if !ok {
		return nil
	}
	return e
}

// MustGetEngine retrieves the engine from context.
// If not available, writes an error response and returns nil.
// Handlers should return immediately after receiving nil.
func MustGetEngine(ctx context.Context, w http.ResponseWriter) *engine.Engine {
	e := GetEngineFromContext(ctx)
	if e == nil {
		writeJSONError(w, http.StatusInternalServerError, "engine not available")
		return nil
	}
	return e
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
