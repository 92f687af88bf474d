// Package handler exposes the thin HTTP surface over the orchestrator.
// Authentication and richer request validation belong to the gateway in front
// of this service.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"driftwatch/internal/watch/models"
	"driftwatch/internal/watch/orchestrator"
	dErrors "driftwatch/pkg/domain-errors"
	"driftwatch/pkg/platform/httputil"
)

// Orchestrator is the slice of the orchestrator the handlers call.
type Orchestrator interface {
	RunCycle(ctx context.Context, opts orchestrator.Options) models.CycleResult
	ForceFlush(ctx context.Context, key models.CoalescingKey) (*models.Session, error)
}

// Handler handles on-demand pipeline endpoints.
type Handler struct {
	orch   Orchestrator
	logger *slog.Logger
}

// New creates the watch Handler.
func New(orch Orchestrator, logger *slog.Logger) *Handler {
	return &Handler{orch: orch, logger: logger}
}

// Register mounts the watch routes on the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/cycles", h.handleRunCycle)
	r.Post("/v1/sessions/flush", h.handleForceFlush)
}

type runCycleRequest struct {
	LookbackHours  int  `json:"lookback_hours,omitempty"`
	ForceImmediate bool `json:"force_immediate,omitempty"`
}

// handleRunCycle triggers one poll cycle synchronously and returns its result.
// Partial failure comes back as data in errors[], not as an HTTP error.
func (h *Handler) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req runCycleRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.logger.Warn("invalid run-cycle request", "error", err)
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}
	if req.LookbackHours < 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "lookback_hours must not be negative"))
		return
	}

	result := h.orch.RunCycle(ctx, orchestrator.Options{
		LookbackHours:  req.LookbackHours,
		ForceImmediate: req.ForceImmediate,
	})
	httputil.WriteJSON(w, http.StatusOK, result)
}

type flushRequest struct {
	OrgID        string `json:"org_id"`
	MetadataType string `json:"metadata_type"`
	MetadataName string `json:"metadata_name"`
	ActorID      string `json:"actor_id"`
}

// handleForceFlush closes a buffered session immediately, bypassing its
// remaining debounce window.
func (h *Handler) handleForceFlush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req flushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid flush request", "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.OrgID == "" || req.MetadataType == "" || req.MetadataName == "" || req.ActorID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "org_id, metadata_type, metadata_name and actor_id are required"))
		return
	}

	key := models.CoalescingKey{
		OrgID:        req.OrgID,
		MetadataType: req.MetadataType,
		MetadataName: req.MetadataName,
		ActorID:      req.ActorID,
	}

	sess, err := h.orch.ForceFlush(ctx, key)
	if err != nil {
		h.logger.Error("force flush failed", "key", key.String(), "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to flush session"))
		return
	}
	if sess == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no buffered session for key"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess)
}
