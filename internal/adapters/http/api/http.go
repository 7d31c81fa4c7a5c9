// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/volleycoach/internal/app"
	"github.com/okian/volleycoach/internal/domain/pose"
	"github.com/okian/volleycoach/internal/domain/practice"
	"github.com/okian/volleycoach/internal/domain/session"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	IngestDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	sessionsHandler *SessionsHandler
	ingestHandler   *IngestHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		sessionsHandler: NewSessionsHandler(deps),
		ingestHandler:   NewIngestHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	route("POST /sessions", "sessions_create", s.sessionsHandler.HandleCreate)
	route("GET /sessions/{id}", "sessions_get", s.sessionsHandler.HandleGet)
	route("DELETE /sessions/{id}", "sessions_delete", s.sessionsHandler.HandleDelete)
	route("POST /sessions/{id}/scene", "sessions_scene", s.sessionsHandler.HandleScene)
	route("POST /sessions/{id}/practice/retry", "practice_retry", s.sessionsHandler.HandleRetry)
	route("POST /sessions/{id}/match/start", "match_start", s.sessionsHandler.HandleStartMatch)
	route("POST /sessions/{id}/match/restart", "match_restart", s.sessionsHandler.HandleRestartMatch)

	route("POST /sessions/{id}/frames", "frames", s.ingestHandler.HandlePostFrame)
	route("POST /sessions/{id}/classifications", "classifications", s.ingestHandler.HandlePostClassification)
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: msg})
}

// writeDomainError translates service and session errors into HTTP codes.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, pose.ErrUnknownScene),
		errors.Is(err, pose.ErrUnknownPose):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, session.ErrClosed):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrLocked):
		return http.StatusForbidden, "locked"
	case errors.Is(err, session.ErrWrongScene):
		return http.StatusConflict, "wrong_scene"
	case errors.Is(err, practice.ErrRunning),
		errors.Is(err, practice.ErrCompleted),
		errors.Is(err, practice.ErrNoPose):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrQueueFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrTooManySessions):
		return http.StatusServiceUnavailable, "capacity"
	case errors.Is(err, service.ErrQueueClosed),
		errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decode reads a JSON body of at most maxBodyBytes into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return wrapKind(ErrBadRequest, err)
	}
	return nil
}
