package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/okian/learnmatch/internal/domain/dedupe"
	"github.com/okian/learnmatch/internal/domain/model"
	"github.com/okian/learnmatch/internal/domain/types"
)

// ProgressDependencies defines what progress intake needs.
type ProgressDependencies interface {
	dedupe.Deduper
	// Enqueue hands an event to the extraction workers.
	Enqueue(ctx context.Context, e model.ProgressEvent) error
}

// ProgressHandler handles progress submissions.
type ProgressHandler struct {
	deps ProgressDependencies
	now  func() time.Time
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(deps ProgressDependencies) *ProgressHandler {
	return &ProgressHandler{deps: deps, now: time.Now}
}

// HandlePostProgress handles POST /progress requests. Submissions without an
// event_id get a generated one and are therefore never duplicates.
func (h *ProgressHandler) HandlePostProgress(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_progress"

	var req types.ProgressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeOpError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.Validate(); err != nil {
		writeOpError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.EventID == "" {
		req.EventID = uuid.NewString()
	}

	ctx := r.Context()
	if h.deps.SeenAndRecord(ctx, req.EventID) {
		writeJSON(w, http.StatusOK, types.ProgressResponse{Status: "duplicate", EventID: req.EventID, Duplicate: true})
		return
	}

	if err := h.deps.Enqueue(ctx, req.ToEvent(h.now())); err != nil {
		// Let the client retry the same id.
		h.deps.Unrecord(ctx, req.EventID)
		writeOpError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, types.ProgressResponse{Status: "accepted", EventID: req.EventID})
}
