package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kozaktomas/visualmatch/internal/backfill"
	"github.com/kozaktomas/visualmatch/internal/lock"
	"github.com/kozaktomas/visualmatch/internal/logger"
	"github.com/kozaktomas/visualmatch/internal/web/middleware"
)

// BackfillHandler triggers backfill runs.
type BackfillHandler struct {
	locker    lock.Locker
	batchSize int
	logger    *zap.Logger
}

// NewBackfillHandler creates a new backfill handler. batchSize is used when the
// request does not name one.
func NewBackfillHandler(locker lock.Locker, batchSize int, l *zap.Logger) *BackfillHandler {
	return &BackfillHandler{locker: locker, batchSize: batchSize, logger: logger.OrNop(l)}
}

// Run registers a batch of pending subjects and reports each outcome. The run is
// synchronous; a concurrent run of the same kind gets 409.
func (h *BackfillHandler) Run(w http.ResponseWriter, r *http.Request) {
	e := middleware.MustGetEngine(r.Context(), w)
	if e == nil {
		return
	}

	batchSize := h.batchSize
	if v := r.URL.Query().Get("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "batch_size must be an integer")
			return
		}
		batchSize = n
	}

	report, err := backfill.RunExclusive(r.Context(), h.locker, e.Pipeline, batchSize)
	if err != nil {
		h.logger.Warn("backfill request failed", zap.String("kind", e.Kind.Name), zap.Error(err))
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
