// Package guard adapts a generic CRUD mutation lifecycle (validate before
// the write, run effects after success) onto the record lock service.
package guard

import (
	"fmt"

	"github.com/quartzcrm/backend/internal/locking"
	"github.com/quartzcrm/backend/internal/logging"
)

// MutationRequest describes one guarded write.
type MutationRequest struct {
	Scope    locking.Scope
	Resource locking.Resource
	Kind     locking.MutationKind
	Headers  locking.MutationHeaders
	Payload  map[string]interface{}
}

// Guard is the thin adapter the CRUD layer calls around each mutation.
type Guard struct {
	svc *locking.Service
	log *logging.Logger
}

// New creates a mutation guard over the given lock service.
func New(svc *locking.Service) *Guard {
	return &Guard{svc: svc, log: logging.Get()}
}

// ValidateBefore runs the correctness gate ahead of persisting a mutation.
// The returned flag must be handed back to AfterSuccess; it says whether
// releasing the caller's lock after the write is safe.
func (g *Guard) ValidateBefore(req MutationRequest) (bool, error) {
	result, err := g.svc.ValidateMutation(req.Scope, req.Resource, req.Kind, req.Headers, req.Payload)
	if err != nil {
		return false, err
	}
	return result.ShouldReleaseOnSuccess, nil
}

// AfterSuccess runs once the mutation has been persisted: it releases the
// caller's lock when validation flagged that safe and, for updates,
// notifies other interested holders asynchronously. Both effects are
// best-effort and never fail the completed mutation.
func (g *Guard) AfterSuccess(req MutationRequest, shouldRelease bool) {
	ctx := map[string]interface{}{
		"tenant_id":     req.Scope.TenantID,
		"resource_kind": req.Resource.Kind,
		"resource_id":   req.Resource.ID,
	}

	if shouldRelease {
		if _, err := g.svc.Release(req.Scope, req.Resource, locking.ReleaseOptions{
			Token:  req.Headers.Token,
			Reason: "mutation_completed",
		}); err != nil {
			g.log.Warn("post-mutation lock release failed", ctx, map[string]interface{}{"error": err.Error()})
		}
	}

	if req.Kind != locking.MutationUpdate {
		return
	}
	go func() {
		// A panic here would take down the host process after an
		// already-successful mutation.
		defer func() {
			if r := recover(); r != nil {
				g.log.Warn("incoming changes notification panicked", ctx, map[string]interface{}{"panic": fmt.Sprint(r)})
			}
		}()
		if err := g.svc.NotifyIncomingChanges(req.Scope, req.Resource); err != nil {
			g.log.Warn("incoming changes notification failed", ctx, map[string]interface{}{"error": err.Error()})
		}
	}()
}
