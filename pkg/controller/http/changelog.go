package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/ctxlog"

	"github.com/hirosegw/changeboard/pkg/domain/interfaces"
)

// ChangelogHandler serves the unified changelog API
type ChangelogHandler struct {
	changelogUC interfaces.ChangelogUseCase
}

// NewChangelogHandler creates a handler backed by the aggregation use case
func NewChangelogHandler(changelogUC interfaces.ChangelogUseCase) *ChangelogHandler {
	return &ChangelogHandler{changelogUC: changelogUC}
}

// Get returns the merged feed for a page. "?refresh=1" bypasses the cache.
func (h *ChangelogHandler) Get(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	refresh := r.URL.Query().Get("refresh")
	force := refresh == "1" || refresh == "true"

	changelog, err := h.changelogUC.GetUnifiedChangelog(r.Context(), pageID, force)
	if err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(changelog); err != nil {
		ctxlog.From(r.Context()).Error("Failed to encode changelog response", "error", err)
	}
}

// InvalidatePage clears one page's cache entry
func (h *ChangelogHandler) InvalidatePage(w http.ResponseWriter, r *http.Request) {
	h.changelogUC.Invalidate(chi.URLParam(r, "pageID"))
	w.WriteHeader(http.StatusNoContent)
}

// InvalidateAll clears the whole cache
func (h *ChangelogHandler) InvalidateAll(w http.ResponseWriter, r *http.Request) {
	h.changelogUC.Invalidate("")
	w.WriteHeader(http.StatusNoContent)
}
