package handlers

import (
	"net/http"

	apperrors "github.com/quartzcrm/backend/internal/errors"
	"github.com/quartzcrm/backend/internal/settings"
)

// SettingsHandler reads and writes per-tenant record locking settings.
type SettingsHandler struct {
	store settings.Source
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(store settings.Source) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// Handle handles GET and PUT /api/settings?tenant_id=...
func (h *SettingsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "tenant_id is required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		cfg, err := h.store.GetSettings(tenantID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)

	case http.MethodPut:
		var cfg settings.RecordLockSettings
		if !decodeBody(w, r, &cfg) {
			return
		}
		if err := h.store.SetSettings(tenantID, cfg); err != nil {
			writeError(w, err)
			return
		}
		stored, err := h.store.GetSettings(tenantID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stored)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
