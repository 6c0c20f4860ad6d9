package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"pg_entity_sync/internal/config"
	"pg_entity_sync/internal/executor"
	"pg_entity_sync/internal/storage"
	"pg_entity_sync/plan"
)

// applier executes plans and reports run history. *executor.Executor is the
// production implementation.
type applier interface {
	Apply(ctx context.Context, p *plan.Plan, opts executor.Options) (*executor.Run, error)
	History(ctx context.Context, limit int) ([]executor.Run, error)
}

type RunHandler struct {
	cfg     config.Config
	planner planSource
	exec    applier
	logger  requestLogger
}

func NewRunHandler(cfg config.Config, planner planSource, exec applier, logger requestLogger) *RunHandler {
	return &RunHandler{cfg: cfg, planner: planner, exec: exec, logger: logger}
}

type applyRequest struct {
	Confirm         bool   `json:"confirm"`
	SaveAs          string `json:"save_as"`
	Description     string `json:"description"`
	TransactionMode string `json:"transaction_mode"`
}

// Apply computes the current plan and executes it. The caller must set
// confirm; save_as stores the forward and rollback SQL before executing.
func (h *RunHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
		return
	}
	if !req.Confirm {
		writeError(w, http.StatusBadRequest, "confirmation_required", "set confirm to execute the plan")
		return
	}

	pl, err := h.planner.BuildPlan(r.Context())
	if err != nil {
		writePlanError(w, h.logger, err)
		return
	}
	if !pl.HasChanges() {
		writeJSON(w, http.StatusOK, map[string]any{"status": "converged", "summary": pl.Summary()})
		return
	}

	if req.SaveAs != "" {
		if _, err := storage.StorePlan(h.cfg.Storage.Path, req.SaveAs, pl, req.Description); err != nil {
			writeError(w, http.StatusBadRequest, "store_failed", err.Error())
			return
		}
	}

	mode := req.TransactionMode
	if mode == "" {
		mode = h.cfg.Apply.TransactionMode
	}
	run, err := h.exec.Apply(r.Context(), pl, executor.Options{TransactionMode: mode})
	if err != nil {
		if errors.Is(err, executor.ErrLockNotAcquired) {
			writeError(w, http.StatusConflict, "locked", err.Error())
			return
		}
		if errors.Is(err, executor.ErrInvalidTxMode) {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		h.logger.Error("apply failed", "error", err)
		writeError(w, http.StatusInternalServerError, "apply_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "executed",
		"run":     run,
		"summary": pl.Summary(),
	})
}

// List returns recent run ledger entries, newest first.
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	runs, err := h.exec.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("list runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list runs")
		return
	}
	if runs == nil {
		runs = []executor.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
