// Package handlers provides the JSON/HTTP surface of the lock daemon. The
// handlers only translate requests to and from the service contract;
// correctness lives in the locking package.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/quartzcrm/backend/internal/errors"
	"github.com/quartzcrm/backend/internal/locking"
)

// scopedRequest is the common envelope of all lock endpoints.
type scopedRequest struct {
	TenantID       string  `json:"tenant_id"`
	OrganizationID *string `json:"organization_id"`
	UserID         string  `json:"user_id"`
	ResourceKind   string  `json:"resource_kind"`
	ResourceID     string  `json:"resource_id"`
}

func (r scopedRequest) scope() locking.Scope {
	return locking.Scope{
		TenantID:       r.TenantID,
		OrganizationID: r.OrganizationID,
		UserID:         r.UserID,
	}
}

func (r scopedRequest) resource() locking.Resource {
	return locking.Resource{Kind: r.ResourceKind, ID: r.ResourceID}
}

func (r scopedRequest) validate() error {
	if r.TenantID == "" || r.UserID == "" || r.ResourceKind == "" || r.ResourceID == "" {
		return apperrors.New(apperrors.ErrInvalid, "tenant_id, user_id, resource_kind and resource_id are required")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError renders an error with its HTTP-equivalent status and the
// structured details payload, if any.
func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := apperrors.AsAppError(err); ok {
		body := map[string]interface{}{
			"code":    appErr.Code,
			"message": appErr.Message,
		}
		if appErr.Details != nil {
			body["details"] = appErr.Details
		}
		writeJSON(w, appErr.HTTPStatus(), body)
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"code":    apperrors.ErrInternal,
		"message": err.Error(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "invalid request body"))
		return false
	}
	return true
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
