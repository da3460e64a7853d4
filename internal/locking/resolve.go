package locking

import (
	apperrors "github.com/quartzcrm/backend/internal/errors"
	"github.com/quartzcrm/backend/internal/models"
)

// resolveConflict transitions a conflict to its terminal status and
// resolution atomically and emits conflict.resolved.
func (s *Service) resolveConflict(c *models.RecordConflict, r models.ConflictResolution, userID string) error {
	status, ok := models.StatusForResolution(r)
	if !ok {
		return apperrors.New(apperrors.ErrInvalid, "unknown conflict resolution: "+string(r))
	}
	c.Status = status
	c.Resolution = r
	c.ResolvedByUserID = userID
	c.ResolvedAt = s.now()
	if err := s.conflicts.Update(c); err != nil {
		return err
	}
	s.emit(EventConflictResolved, conflictEventPayload(c))
	return nil
}

// ResolveConflict applies a resolution to an already-loaded conflict on
// behalf of the scope's user. Callers are expected to have checked
// ownership and authorization.
func (s *Service) ResolveConflict(scope Scope, c *models.RecordConflict, r models.ConflictResolution) error {
	return s.resolveConflict(c, r, scope.UserID)
}

// ResolveConflictByID resolves a conflict by id, re-deriving authorization.
// Returns false without error when the conflict is missing, not pending,
// not owned by the caller, or the caller lacks override authorization for
// a non-accept_incoming resolution. Retrying an identical resolution by
// the same actor returns true without re-emitting conflict.resolved.
func (s *Service) ResolveConflictByID(scope Scope, conflictID string, r models.ConflictResolution) (bool, error) {
	cfg, err := s.settings.GetSettings(scope.TenantID)
	if err != nil {
		return false, err
	}
	c, err := s.conflicts.GetByID(scope.TenantID, conflictID)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, nil
	}
	if !c.IsPending() {
		return c.Resolution == r && c.ResolvedByUserID == scope.UserID, nil
	}
	if c.ConflictActorUserID != scope.UserID {
		return false, nil
	}
	if r != models.ResolutionAcceptIncoming && !s.canOverrideIncoming(cfg, scope) {
		return false, nil
	}
	if err := s.resolveConflict(c, r, scope.UserID); err != nil {
		return false, err
	}
	return true, nil
}

func conflictEventPayload(c *models.RecordConflict) map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":       c.TenantID,
		"organization_id": c.OrganizationID,
		"resource_kind":   c.ResourceKind,
		"resource_id":     c.ResourceID,
		"conflict_id":     c.ID,
		"status":          c.Status,
		"resolution":      c.Resolution,
	}
}
