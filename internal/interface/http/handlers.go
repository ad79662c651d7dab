package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/config"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/application/notifier"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	root := map[string]interface{}{
		"name":    "skillsync matching",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health": "/health",
			"queue":  "/v1/queue",
			"stats":  "/v1/queue/stats",
			"match":  "/v1/match",
			"stream": "/v1/stream/{userID}",
		},
	}
	if s.deps.Features != nil {
		root["features"] = s.deps.Features.All()
	}
	writeJSON(w, r, http.StatusOK, root)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"uptime":  s.Uptime().String(),
			"version": s.config.Version,
		})
		return
	}
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// handleReady handles the readiness probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Ready {
			writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready", status.Message)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEUE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleJoinQueue handles POST /v1/queue. Re-joining replaces the request.
func (s *Server) handleJoinQueue(w http.ResponseWriter, r *http.Request) {
	var req queue.MatchingRequest
	if !s.decode(w, r, &req) {
		return
	}
	status, err := s.deps.Queue.AddToQueue(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "AddToQueue", err)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// handleLeaveQueue handles DELETE /v1/queue/{userID}. Leaving when not queued
// succeeds.
func (s *Server) handleLeaveQueue(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	if err := s.deps.Queue.RemoveFromQueue(r.Context(), userID); err != nil {
		s.writeError(w, r, "RemoveFromQueue", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleQueueStatus handles GET /v1/queue/{userID}.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	status, err := s.deps.Queue.GetStatus(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, "GetStatus", err)
		return
	}
	if status == nil {
		writeJSONError(w, r, http.StatusNotFound, "not_queued", fmt.Sprintf("user %q is not in the queue", userID))
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// handleQueueStats handles GET /v1/queue/stats.
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Queue.GetQueueStats(r.Context())
	if err != nil {
		s.writeError(w, r, "GetQueueStats", err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// handleCleanup handles POST /v1/queue/cleanup.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cleanup == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "cleanup is not configured")
		return
	}
	res, err := s.deps.Cleanup.Sweep(r.Context())
	if err != nil {
		s.writeError(w, r, "Sweep", err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCH HANDLER
// ══════════════════════════════════════════════════════════════════════════════

type matchResponse struct {
	Matched bool        `json:"matched"`
	Match   interface{} `json:"match,omitempty"`
}

// handleFindMatch handles POST /v1/match. No acceptable candidate is not an
// error: the caller stays queued and may retry.
func (s *Server) handleFindMatch(w http.ResponseWriter, r *http.Request) {
	var req queue.MatchingRequest
	if !s.decode(w, r, &req) {
		return
	}
	m, err := s.deps.Queue.FindMatch(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "FindMatch", err)
		return
	}
	if m == nil {
		writeJSON(w, r, http.StatusOK, matchResponse{Matched: false})
		return
	}
	writeJSON(w, r, http.StatusOK, matchResponse{Matched: true, Match: m})
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAM HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleStream handles GET /v1/stream/{userID}. The user's notifications are
// routed here until the connection closes or a newer stream replaces it.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(mux.Vars(r)["userID"])
	if s.deps.Hub == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "event stream is not configured")
		return
	}
	if s.deps.Features != nil &&
		!s.deps.Features.IsEnabled(config.FeatureEventStream, &config.FeatureContext{UserID: userID}) {
		writeJSONError(w, r, http.StatusNotFound, "feature_disabled", "event stream is not enabled")
		return
	}

	hub := s.deps.Hub
	client := hub.Connect(userID)
	defer hub.Disconnect(client)
	hub.Join(client, notifier.TopicQueue)
	hub.Join(client, notifier.TopicStats)

	if s.deps.Notifier != nil {
		s.deps.Notifier.Bind(userID, client.ID)
		defer s.deps.Notifier.UnbindChannel(client.ID)
	}

	if err := hub.Serve(w, r, client, nil); err != nil {
		s.logger.Warn("stream failed", logger.UserID(userID), logger.Err(err))
		writeJSONError(w, r, http.StatusInternalServerError, "streaming_unsupported", err.Error())
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decode reads a single JSON object, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
		case errors.Is(err, io.EOF):
			writeJSONError(w, r, http.StatusBadRequest, "invalid_json", "request body is empty")
		default:
			writeJSONError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		}
		return false
	}
	return true
}

// writeError maps the error taxonomy onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, "not_found", err.Error())
	case shared.IsConflict(err):
		writeJSONError(w, r, http.StatusConflict, "conflict", "the queue changed concurrently, retry")
	case shared.IsInfrastructure(err), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		logger.FromContext(r.Context()).Warn("request degraded", logger.Operation(op), logger.Err(err))
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, r, http.StatusServiceUnavailable, "unavailable", "a backing service is unavailable, retry shortly")
	default:
		logger.FromContext(r.Context()).Error("request failed", logger.Operation(op), logger.Err(err))
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
