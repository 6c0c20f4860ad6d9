package httpserver

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pg_entity_sync/internal/storage"
)

type ScriptHandler struct {
	base   string
	logger requestLogger
}

func NewScriptHandler(base string, logger requestLogger) *ScriptHandler {
	return &ScriptHandler{base: base, logger: logger}
}

// List returns the manifest of every stored script.
func (h *ScriptHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := storage.ListScriptRecords(h.base)
	if err != nil {
		h.logger.Error("list scripts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list scripts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scripts": records})
}

// Get returns one stored script with both SQL bodies.
func (h *ScriptHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	record, forward, rollback, err := storage.LoadScript(h.base, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "not_found", "script not found")
			return
		}
		h.logger.Error("load script failed", "error", err, "script", name)
		writeError(w, http.StatusInternalServerError, "lookup_failed", "failed to load script")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"record":       record,
		"forward_sql":  forward,
		"rollback_sql": rollback,
	})
}
