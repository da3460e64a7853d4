package locking

import (
	"strings"

	apperrors "github.com/quartzcrm/backend/internal/errors"
	"github.com/quartzcrm/backend/internal/models"
	"github.com/quartzcrm/backend/internal/settings"
	"github.com/quartzcrm/backend/internal/uuid"
)

// MutationKind distinguishes the write operations guarded by validation.
type MutationKind string

const (
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// Request header names consumed by the mutation boundary.
const (
	HeaderLockKind       = "lock-kind"
	HeaderLockResourceID = "lock-resource-id"
	HeaderLockToken      = "lock-token"
	HeaderLockBaseLogID  = "lock-base-log-id"
	HeaderLockResolution = "lock-resolution"
	HeaderLockConflictID = "lock-conflict-id"
)

// MutationHeaders is the parsed form of the locking request headers. All
// fields are optional; absence means "no opinion".
type MutationHeaders struct {
	ResourceKind string
	ResourceID   string
	Token        string
	BaseLogID    string
	Resolution   models.ConflictResolution
	ConflictID   string
}

// ParseMutationHeaders reads the locking headers through the given accessor.
// Malformed values degrade to absent rather than erroring; the headers come
// from untrusted clients.
func ParseMutationHeaders(get func(string) string) MutationHeaders {
	h := MutationHeaders{
		ResourceKind: strings.TrimSpace(get(HeaderLockKind)),
		ResourceID:   strings.TrimSpace(get(HeaderLockResourceID)),
	}
	if tok := strings.TrimSpace(get(HeaderLockToken)); uuid.IsValid(tok) {
		h.Token = tok
	}
	if id := strings.TrimSpace(get(HeaderLockBaseLogID)); uuid.IsValid(id) {
		h.BaseLogID = id
	}
	if id := strings.TrimSpace(get(HeaderLockConflictID)); uuid.IsValid(id) {
		h.ConflictID = id
	}
	switch r := models.ConflictResolution(strings.TrimSpace(get(HeaderLockResolution))); r {
	case models.ResolutionAcceptMine, models.ResolutionMerged, models.ResolutionNormal:
		h.Resolution = r
	}
	return h
}

// overrideIntent reports whether the headers pre-declare a resolution that
// keeps the caller's write.
func (h MutationHeaders) overrideIntent() bool {
	return h.Resolution == models.ResolutionAcceptMine || h.Resolution == models.ResolutionMerged
}

// ValidationResult is the success outcome of ValidateMutation.
// ShouldReleaseOnSuccess tells the guard whether releasing the lock after
// the write is safe for this caller.
type ValidationResult struct {
	ShouldReleaseOnSuccess bool
}

// ValidateMutation is the correctness gate invoked before persisting any
// write. Pessimistic strategy enforces exclusivity; optimistic strategy
// detects base-version conflicts against the latest recorded change and
// surfaces them with a field-level payload.
func (s *Service) ValidateMutation(scope Scope, res Resource, kind MutationKind, hdr MutationHeaders, payload map[string]interface{}) (*ValidationResult, error) {
	cfg, err := s.settings.GetSettings(scope.TenantID)
	if err != nil {
		return nil, err
	}
	if !cfg.EnabledForResource(res.Kind) {
		return &ValidationResult{}, nil
	}

	canOverride := s.canOverrideIncoming(cfg, scope)

	cur, err := s.findActiveLock(scope, res)
	if err != nil {
		return nil, err
	}

	if cfg.Strategy == models.LockStrategyPessimistic {
		if cur != nil && cur.LockedByUserID != scope.UserID {
			return nil, lockedError(cur, "record is locked by another user")
		}
		if cur != nil && cur.Token != hdr.Token {
			return nil, lockedError(cur, "lock token does not match the current claim")
		}
		return &ValidationResult{ShouldReleaseOnSuccess: true}, nil
	}

	latest, err := s.history.FindLatest(scope.TenantID, scope.OrganizationID, res.Kind, res.ID)
	if err != nil {
		return nil, err
	}
	latestID := ""
	if latest != nil {
		latestID = string(latest.ID)
	}
	ownsLock := cur == nil || cur.LockedByUserID == scope.UserID

	if hdr.ConflictID != "" {
		c, err := s.conflicts.GetByID(scope.TenantID, hdr.ConflictID)
		if err != nil {
			return nil, err
		}
		if c != nil {
			return s.validateReferencedConflict(scope, cfg, c, hdr, payload, cur, canOverride, ownsLock)
		}
		// Unknown conflict id degrades to "no referenced conflict".
	}

	conflicting := false
	if hdr.BaseLogID != "" {
		conflicting = hdr.BaseLogID != latestID
	} else if cur != nil && cur.LockedByUserID == scope.UserID && latest != nil &&
		latest.ActorUserID != scope.UserID && latest.CreatedAt > cur.LockedAt {
		// No base version supplied, but someone else changed the resource
		// after the caller's edit session began.
		conflicting = true
	}
	if !conflicting {
		return &ValidationResult{ShouldReleaseOnSuccess: ownsLock}, nil
	}

	c := &models.RecordConflict{
		TenantID:            scope.TenantID,
		OrganizationID:      scope.OrganizationID,
		ResourceKind:        res.Kind,
		ResourceID:          res.ID,
		BaseActionLogID:     baseLogFor(hdr, cur, ownsLock),
		IncomingActionLogID: latestID,
		ConflictActorUserID: scope.UserID,
	}
	if latest != nil {
		c.IncomingActorUserID = latest.ActorUserID
	}

	if hdr.overrideIntent() && canOverride {
		// The caller pre-declared a resolution keeping their payload and is
		// authorized; record the conflict already resolved and let the
		// write proceed.
		status, _ := models.StatusForResolution(hdr.Resolution)
		c.Status = status
		c.Resolution = hdr.Resolution
		c.ResolvedByUserID = scope.UserID
		c.ResolvedAt = s.now()
		if err := s.conflicts.Insert(c); err != nil {
			return nil, err
		}
		s.emit(EventConflictResolved, conflictEventPayload(c))
		return &ValidationResult{ShouldReleaseOnSuccess: ownsLock}, nil
	}

	c.Status = models.ConflictStatusPending
	if err := s.conflicts.Insert(c); err != nil {
		return nil, err
	}
	s.emit(EventConflictDetected, conflictEventPayload(c))
	return nil, s.conflictError(cfg, c, cur, payload, canOverride)
}

// validateReferencedConflict handles a mutation carrying an explicit
// conflict id: an authorized owner may settle the pending conflict and
// proceed, and an identical retry of an already-applied resolution is
// accepted; everything else re-surfaces the conflict.
func (s *Service) validateReferencedConflict(scope Scope, cfg settings.RecordLockSettings, c *models.RecordConflict, hdr MutationHeaders, payload map[string]interface{}, cur *models.RecordLock, canOverride, ownsLock bool) (*ValidationResult, error) {
	if hdr.overrideIntent() {
		status, _ := models.StatusForResolution(hdr.Resolution)
		if !c.IsPending() && c.Status == status && c.ResolvedByUserID == scope.UserID {
			return &ValidationResult{ShouldReleaseOnSuccess: ownsLock}, nil
		}
		if c.IsPending() && c.ConflictActorUserID == scope.UserID && canOverride {
			if err := s.resolveConflict(c, hdr.Resolution, scope.UserID); err != nil {
				return nil, err
			}
			return &ValidationResult{ShouldReleaseOnSuccess: ownsLock}, nil
		}
	}
	return nil, s.conflictError(cfg, c, cur, payload, canOverride)
}

// baseLogFor picks the base version recorded on a new conflict: the
// client's declared base, else the base captured by the caller's own lock.
func baseLogFor(hdr MutationHeaders, cur *models.RecordLock, ownsLock bool) string {
	if hdr.BaseLogID != "" {
		return hdr.BaseLogID
	}
	if cur != nil && ownsLock {
		return cur.BaseActionLogID
	}
	return ""
}

func (s *Service) canOverrideIncoming(cfg settings.RecordLockSettings, scope Scope) bool {
	if !cfg.AllowIncomingOverride || s.caps == nil {
		return false
	}
	return s.caps.UserHasAllFeatures(scope.UserID,
		[]string{FeatureOverrideIncomingChanges}, scope.TenantID, scope.OrganizationID)
}

func lockedError(lock *models.RecordLock, message string) error {
	return apperrors.New(apperrors.ErrRecordLocked, message).
		WithDetails(map[string]interface{}{"lock": lock.View()})
}
