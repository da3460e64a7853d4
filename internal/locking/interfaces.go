// Package locking implements the record locking and conflict-resolution
// engine: pessimistic mutual-exclusion claims, optimistic base-version
// conflict detection, field-level conflict payloads, notification fan-out,
// and opportunistic retention cleanup, all scoped per tenant/organization.
package locking

import (
	"github.com/quartzcrm/backend/internal/models"
)

// Scope identifies the caller's tenancy context for an operation.
// OrganizationID nil means "global within tenant"; lookups against an
// organization scope fall back to tenant-wide rows.
type Scope struct {
	TenantID       string
	OrganizationID *string
	UserID         string
}

// Resource identifies one lockable resource instance within a scope.
type Resource struct {
	Kind string
	ID   string
}

// LockStore is the persistence contract for record locks.
type LockStore interface {
	Insert(l *models.RecordLock) error
	Update(l *models.RecordLock) error
	FindActive(tenantID string, orgID *string, kind, resourceID string) (*models.RecordLock, error)
	FindActiveOwned(tenantID string, orgID *string, kind, resourceID, userID string) (*models.RecordLock, error)
	ListActive(tenantID string, orgID *string, kind, resourceID string) ([]*models.RecordLock, error)
	ListTouchedSince(tenantID string, orgID *string, kind, resourceID string, since int64) ([]*models.RecordLock, error)
	DeleteNonActiveBefore(tenantID string, cutoff int64) error
}

// ConflictStore is the persistence contract for record conflicts.
type ConflictStore interface {
	Insert(c *models.RecordConflict) error
	Update(c *models.RecordConflict) error
	GetByID(tenantID, id string) (*models.RecordConflict, error)
	DeleteResolvedBefore(tenantID string, cutoff int64) error
	DeletePendingBefore(tenantID string, cutoff int64) error
}

// ChangeHistory looks up recorded changes to resources. It is implemented
// by the audit subsystem; the engine only reads from it.
type ChangeHistory interface {
	FindLatest(tenantID string, orgID *string, kind, resourceID string) (*models.ActionLogEntry, error)
	FindLatestByActor(tenantID string, orgID *string, kind, resourceID, actorUserID string) (*models.ActionLogEntry, error)
	FindByID(id string) (*models.ActionLogEntry, error)
}

// CapabilityChecker answers feature-authorization questions. Implemented by
// the RBAC subsystem.
type CapabilityChecker interface {
	UserHasAllFeatures(userID string, features []string, tenantID string, orgID *string) bool
}

// Emitter publishes outbound domain events. Fire-and-forget; the engine
// assumes at-least-once delivery and never blocks on emission.
type Emitter interface {
	Emit(eventID string, payload interface{})
}
