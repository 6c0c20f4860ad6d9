package httpserver

import (
	"context"
	"net/http"

	"pg_entity_sync/plan"
)

// planSource computes a reconciliation plan on demand. The planner package
// provides the production implementation.
type planSource interface {
	BuildPlan(ctx context.Context) (*plan.Plan, error)
}

type EntityHandler struct {
	planner planSource
	logger  requestLogger
}

func NewEntityHandler(planner planSource, logger requestLogger) *EntityHandler {
	return &EntityHandler{planner: planner, logger: logger}
}

type entityListing struct {
	Key           string `json:"key"`
	Kind          string `json:"kind"`
	Schema        string `json:"schema"`
	Signature     string `json:"signature"`
	Parent        string `json:"parent,omitempty"`
	Status        string `json:"status"`
	DeclaredHash  string `json:"declared_hash,omitempty"`
	ReflectedHash string `json:"reflected_hash,omitempty"`
}

// List pairs the declared inventory with the live catalog and returns both
// sides of every pairing.
func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	pl, err := h.planner.BuildPlan(r.Context())
	if err != nil {
		writePlanError(w, h.logger, err)
		return
	}
	items := make([]entityListing, 0, len(pl.Records))
	for _, rec := range pl.Records {
		item := entityListing{
			Key:       rec.Identity.Key(),
			Kind:      string(rec.Identity.Kind),
			Schema:    rec.Identity.Schema,
			Signature: rec.Identity.Signature,
			Parent:    rec.Identity.Parent,
			Status:    string(rec.Status),
		}
		if rec.Declared != nil {
			item.DeclaredHash = rec.Declared.DefinitionHash()
		}
		if rec.Reflected != nil {
			item.ReflectedHash = rec.Reflected.DefinitionHash()
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": items})
}
