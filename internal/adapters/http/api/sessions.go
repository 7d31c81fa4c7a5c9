package api

import (
	"context"
	"net/http"

	"github.com/okian/volleycoach/internal/domain/pose"
	"github.com/okian/volleycoach/internal/domain/session"
)

// SessionDependencies defines the session lifecycle and command operations.
type SessionDependencies interface {
	CreateSession(ctx context.Context) (session.Snapshot, error)
	Snapshot(ctx context.Context, id string) (session.Snapshot, error)
	DeleteSession(ctx context.Context, id string) error
	ShowScene(ctx context.Context, id string, scene pose.Scene) (session.Snapshot, error)
	Retry(ctx context.Context, id string) error
	StartMatch(ctx context.Context, id string) error
	RestartMatch(ctx context.Context, id string) error
}

// SessionsHandler handles session requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandleCreate handles POST /sessions.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.CreateSession(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+snap.ID)
	writeJSON(w, http.StatusCreated, snap)
}

// HandleGet handles GET /sessions/{id}.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleDelete handles DELETE /sessions/{id}.
func (h *SessionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleScene handles POST /sessions/{id}/scene.
func (h *SessionsHandler) HandleScene(w http.ResponseWriter, r *http.Request) {
	var req SceneRequest
	if err := decode(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	scene, err := pose.ParseScene(req.Scene)
	if err != nil {
		writeDomainError(w, wrapKind(ErrBadRequest, err))
		return
	}
	snap, err := h.deps.ShowScene(r.Context(), r.PathValue("id"), scene)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleRetry handles POST /sessions/{id}/practice/retry.
func (h *SessionsHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.deps.Retry)
}

// HandleStartMatch handles POST /sessions/{id}/match/start.
func (h *SessionsHandler) HandleStartMatch(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.deps.StartMatch)
}

// HandleRestartMatch handles POST /sessions/{id}/match/restart.
func (h *SessionsHandler) HandleRestartMatch(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.deps.RestartMatch)
}

func (h *SessionsHandler) command(w http.ResponseWriter, r *http.Request, run func(context.Context, string) error) {
	if err := run(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
