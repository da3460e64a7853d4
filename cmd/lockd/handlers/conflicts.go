package handlers

import (
	"net/http"

	"github.com/quartzcrm/backend/internal/guard"
	"github.com/quartzcrm/backend/internal/locking"
	"github.com/quartzcrm/backend/internal/models"
)

// ConflictHandler handles conflict resolution.
type ConflictHandler struct {
	svc *locking.Service
}

// NewConflictHandler creates a new ConflictHandler.
func NewConflictHandler(svc *locking.Service) *ConflictHandler {
	return &ConflictHandler{svc: svc}
}

// Resolve handles POST /api/conflicts/resolve
func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		TenantID       string                    `json:"tenant_id"`
		OrganizationID *string                   `json:"organization_id"`
		UserID         string                    `json:"user_id"`
		ConflictID     string                    `json:"conflict_id"`
		Resolution     models.ConflictResolution `json:"resolution"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	scope := locking.Scope{
		TenantID:       req.TenantID,
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
	}
	resolved, err := h.svc.ResolveConflictByID(scope, req.ConflictID, req.Resolution)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"resolved": resolved})
}

// MutationHandler exposes the mutation guard lifecycle to external CRUD
// layers that persist their writes elsewhere.
type MutationHandler struct {
	guard *guard.Guard
}

// NewMutationHandler creates a new MutationHandler.
func NewMutationHandler(g *guard.Guard) *MutationHandler {
	return &MutationHandler{guard: g}
}

func (h *MutationHandler) mutationRequest(r *http.Request, req *mutationBody) guard.MutationRequest {
	return guard.MutationRequest{
		Scope:    req.scope(),
		Resource: req.resource(),
		Kind:     locking.MutationKind(req.Action),
		Headers:  locking.ParseMutationHeaders(r.Header.Get),
		Payload:  req.Payload,
	}
}

type mutationBody struct {
	scopedRequest
	Action  string                 `json:"action"`
	Payload map[string]interface{} `json:"payload"`
}

// Validate handles POST /api/mutations/validate: the pre-write gate.
// Locking headers ride on the HTTP request itself.
func (h *MutationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req mutationBody
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	shouldRelease, err := h.guard.ValidateBefore(h.mutationRequest(r, &req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"should_release_on_success": shouldRelease})
}

// Complete handles POST /api/mutations/complete: the post-write effects
// (lock release and notification fan-out).
func (h *MutationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		mutationBody
		ShouldRelease bool `json:"should_release_on_success"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	h.guard.AfterSuccess(h.mutationRequest(r, &req.mutationBody), req.ShouldRelease)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
