package db

import (
	"database/sql"
	"time"

	apperrors "github.com/quartzcrm/backend/internal/errors"
	"github.com/quartzcrm/backend/internal/models"
	"github.com/quartzcrm/backend/internal/uuid"
)

const actionLogColumns = `id, tenant_id, organization_id, resource_kind, resource_id,
	actor_user_id, snapshot_before, snapshot_after, changes, created_at`

// ActionLogStore is a reference implementation of the change-history
// contract consumed by the locking service. Production deployments back
// this with the audit subsystem; this store exists for wiring and tests.
type ActionLogStore struct {
	db *sql.DB
}

// NewActionLogStore creates a new ActionLogStore.
func NewActionLogStore(db *sql.DB) *ActionLogStore {
	return &ActionLogStore{db: db}
}

// Insert creates a new action log entry.
func (s *ActionLogStore) Insert(e *models.ActionLogEntry) error {
	if e.ID == "" {
		e.ID = models.UUID(uuid.New())
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}

	query := `
	INSERT INTO action_log (` + actionLogColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		e.ID, e.TenantID, e.OrganizationID, e.ResourceKind, e.ResourceID,
		e.ActorUserID, nullStr(string(e.SnapshotBefore)), nullStr(string(e.SnapshotAfter)),
		nullStr(string(e.Changes)), e.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to insert action log entry", err)
	}
	return nil
}

// FindLatest returns the most recent change record for a resource, or nil.
// Organization-scoped lookup falls back to the tenant-wide rows.
func (s *ActionLogStore) FindLatest(tenantID string, orgID *string, kind, resourceID string) (*models.ActionLogEntry, error) {
	return s.findLatest(tenantID, orgID, kind, resourceID, "")
}

// FindLatestByActor returns the most recent change record authored by the
// given actor, or nil.
func (s *ActionLogStore) FindLatestByActor(tenantID string, orgID *string, kind, resourceID, actorUserID string) (*models.ActionLogEntry, error) {
	return s.findLatest(tenantID, orgID, kind, resourceID, actorUserID)
}

func (s *ActionLogStore) findLatest(tenantID string, orgID *string, kind, resourceID, actorUserID string) (*models.ActionLogEntry, error) {
	if orgID != nil {
		e, err := s.findLatestOrg(tenantID, orgID, kind, resourceID, actorUserID)
		if err != nil || e != nil {
			return e, err
		}
	}
	return s.findLatestOrg(tenantID, nil, kind, resourceID, actorUserID)
}

func (s *ActionLogStore) findLatestOrg(tenantID string, orgID *string, kind, resourceID, actorUserID string) (*models.ActionLogEntry, error) {
	query := `
	SELECT ` + actionLogColumns + `
	FROM action_log
	WHERE tenant_id = ? AND resource_kind = ? AND resource_id = ?
	`
	args := []interface{}{tenantID, kind, resourceID}
	if orgID != nil {
		query += ` AND organization_id = ?`
		args = append(args, *orgID)
	} else {
		query += ` AND organization_id IS NULL`
	}
	if actorUserID != "" {
		query += ` AND actor_user_id = ?`
		args = append(args, actorUserID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT 1`

	e, err := scanActionLog(s.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to find latest change record", err)
	}
	return e, nil
}

// FindByID returns a change record by id, or nil if none exists.
func (s *ActionLogStore) FindByID(id string) (*models.ActionLogEntry, error) {
	query := `SELECT ` + actionLogColumns + ` FROM action_log WHERE id = ?`
	e, err := scanActionLog(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to find change record", err)
	}
	return e, nil
}

func scanActionLog(row rowScanner) (*models.ActionLogEntry, error) {
	var e models.ActionLogEntry
	var orgID, before, after, changes sql.NullString
	err := row.Scan(
		&e.ID, &e.TenantID, &orgID, &e.ResourceKind, &e.ResourceID,
		&e.ActorUserID, &before, &after, &changes, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if orgID.Valid {
		e.OrganizationID = &orgID.String
	}
	if before.Valid {
		e.SnapshotBefore = []byte(before.String)
	}
	if after.Valid {
		e.SnapshotAfter = []byte(after.String)
	}
	if changes.Valid {
		e.Changes = []byte(changes.String)
	}
	return &e, nil
}
