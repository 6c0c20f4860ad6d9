package httpserver

import (
	"errors"
	"net/http"

	"pg_entity_sync/entity"
)

type PlanHandler struct {
	planner planSource
	logger  requestLogger
}

func NewPlanHandler(planner planSource, logger requestLogger) *PlanHandler {
	return &PlanHandler{planner: planner, logger: logger}
}

// Get computes the current plan without executing anything.
func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	pl, err := h.planner.BuildPlan(r.Context())
	if err != nil {
		writePlanError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"has_changes": pl.HasChanges(),
		"summary":     pl.Summary(),
		"operations":  pl.Operations,
	})
}

// writePlanError distinguishes inventory problems the caller can fix from
// internal failures.
func writePlanError(w http.ResponseWriter, logger requestLogger, err error) {
	switch {
	case errors.Is(err, entity.ErrInvalidIdentity),
		errors.Is(err, entity.ErrInvalidDefinition),
		errors.Is(err, entity.ErrDuplicateIdentity),
		errors.Is(err, entity.ErrDependencyCycle):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		logger.Error("plan build failed", "error", err)
		writeError(w, http.StatusInternalServerError, "plan_failed", "failed to build plan")
	}
}
