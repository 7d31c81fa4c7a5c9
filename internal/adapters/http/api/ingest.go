package api

import (
	"context"
	"net/http"

	"github.com/okian/volleycoach/internal/domain/model"
	"github.com/okian/volleycoach/internal/domain/pose"
)

// IngestDependencies defines frame and classification intake.
type IngestDependencies interface {
	// SubmitFrame queues a frame; it reports true for an already seen frame ID.
	SubmitFrame(ctx context.Context, f model.Frame) (bool, error)
	SubmitClassification(ctx context.Context, id string, r pose.Result) error
}

// IngestHandler handles frame and classification uploads.
type IngestHandler struct {
	deps IngestDependencies
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(deps IngestDependencies) *IngestHandler {
	return &IngestHandler{deps: deps}
}

// HandlePostFrame handles POST /sessions/{id}/frames.
func (h *IngestHandler) HandlePostFrame(w http.ResponseWriter, r *http.Request) {
	var req FrameRequest
	if err := decode(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeDomainError(w, wrapKind(ErrBadRequest, err))
		return
	}

	dup, err := h.deps.SubmitFrame(r.Context(), req.Frame(r.PathValue("id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if dup {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

// HandlePostClassification handles POST /sessions/{id}/classifications.
func (h *IngestHandler) HandlePostClassification(w http.ResponseWriter, r *http.Request) {
	var req ClassificationRequest
	if err := decode(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeDomainError(w, wrapKind(ErrBadRequest, err))
		return
	}
	if err := h.deps.SubmitClassification(r.Context(), r.PathValue("id"), req.Result()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
