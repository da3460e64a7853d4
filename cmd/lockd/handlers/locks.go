package handlers

import (
	"net"
	"net/http"

	"github.com/quartzcrm/backend/internal/guard"
	"github.com/quartzcrm/backend/internal/locking"
	"github.com/quartzcrm/backend/internal/models"
	"github.com/quartzcrm/backend/internal/settings"
)

// LockHandler handles lock lifecycle operations.
type LockHandler struct {
	svc *locking.Service
}

// NewLockHandler creates a new LockHandler.
func NewLockHandler(svc *locking.Service) *LockHandler {
	return &LockHandler{svc: svc}
}

// Register wires all lockd endpoints onto the mux.
func Register(mux *http.ServeMux, svc *locking.Service, g *guard.Guard, cfg settings.Source) {
	locks := NewLockHandler(svc)
	mux.HandleFunc("/api/locks/acquire", locks.Acquire)
	mux.HandleFunc("/api/locks/heartbeat", locks.Heartbeat)
	mux.HandleFunc("/api/locks/release", locks.Release)
	mux.HandleFunc("/api/locks/force-release", locks.ForceRelease)

	conflicts := NewConflictHandler(svc)
	mux.HandleFunc("/api/conflicts/resolve", conflicts.Resolve)

	mutations := NewMutationHandler(g)
	mux.HandleFunc("/api/mutations/validate", mutations.Validate)
	mux.HandleFunc("/api/mutations/complete", mutations.Complete)

	tenantSettings := NewSettingsHandler(cfg)
	mux.HandleFunc("/api/settings", tenantSettings.Handle)
}

// Acquire handles POST /api/locks/acquire
func (h *LockHandler) Acquire(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req scopedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.svc.Acquire(req.scope(), req.resource(), clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Heartbeat handles POST /api/locks/heartbeat
func (h *LockHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		scopedRequest
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.svc.Heartbeat(req.scope(), req.resource(), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Release handles POST /api/locks/release
func (h *LockHandler) Release(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		scopedRequest
		Token      string                    `json:"token"`
		Reason     string                    `json:"reason"`
		ConflictID string                    `json:"conflict_id"`
		Resolution models.ConflictResolution `json:"resolution"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.svc.Release(req.scope(), req.resource(), locking.ReleaseOptions{
		Token:      req.Token,
		Reason:     req.Reason,
		ConflictID: req.ConflictID,
		Resolution: req.Resolution,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ForceRelease handles POST /api/locks/force-release
func (h *LockHandler) ForceRelease(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		scopedRequest
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	released, err := h.svc.ForceRelease(req.scope(), req.resource(), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"released": released})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
