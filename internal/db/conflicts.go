package db

import (
	"database/sql"
	"time"

	apperrors "github.com/quartzcrm/backend/internal/errors"
	"github.com/quartzcrm/backend/internal/models"
	"github.com/quartzcrm/backend/internal/uuid"
)

const conflictColumns = `id, tenant_id, organization_id, resource_kind, resource_id, status,
	resolution, base_action_log_id, incoming_action_log_id, conflict_actor_user_id,
	incoming_actor_user_id, resolved_by_user_id, resolved_at, created_at, updated_at`

// ConflictStore provides persistence for record conflicts.
type ConflictStore struct {
	db *sql.DB
}

// NewConflictStore creates a new ConflictStore.
func NewConflictStore(db *sql.DB) *ConflictStore {
	return &ConflictStore{db: db}
}

// Insert creates a new conflict row.
func (s *ConflictStore) Insert(c *models.RecordConflict) error {
	now := time.Now().Unix()
	if c.ID == "" {
		c.ID = models.UUID(uuid.New())
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `
	INSERT INTO record_conflicts (` + conflictColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		c.ID, c.TenantID, c.OrganizationID, c.ResourceKind, c.ResourceID, c.Status,
		nullStr(string(c.Resolution)), nullStr(c.BaseActionLogID), nullStr(c.IncomingActionLogID),
		c.ConflictActorUserID, nullStr(c.IncomingActorUserID), nullStr(c.ResolvedByUserID),
		nullInt(c.ResolvedAt), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to insert conflict", err)
	}
	return nil
}

// Update persists the resolution state of a conflict by id.
func (s *ConflictStore) Update(c *models.RecordConflict) error {
	c.Touch()
	query := `
	UPDATE record_conflicts
	SET status = ?, resolution = ?, resolved_by_user_id = ?, resolved_at = ?, updated_at = ?
	WHERE id = ?
	`
	result, err := s.db.Exec(query,
		c.Status, nullStr(string(c.Resolution)), nullStr(c.ResolvedByUserID),
		nullInt(c.ResolvedAt), c.UpdatedAt, c.ID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to update conflict", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.New(apperrors.ErrNotFound, "conflict not found: "+string(c.ID))
	}
	return nil
}

// GetByID returns a conflict by id, scoped to the tenant. Returns nil if no
// such conflict exists in the tenant.
func (s *ConflictStore) GetByID(tenantID, id string) (*models.RecordConflict, error) {
	query := `
	SELECT ` + conflictColumns + `
	FROM record_conflicts
	WHERE tenant_id = ? AND id = ?
	`
	c, err := scanConflict(s.db.QueryRow(query, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to find conflict", err)
	}
	return c, nil
}

// DeleteResolvedBefore removes resolved conflicts last updated before the
// cutoff. Used by retention cleanup.
func (s *ConflictStore) DeleteResolvedBefore(tenantID string, cutoff int64) error {
	query := `DELETE FROM record_conflicts WHERE tenant_id = ? AND status != 'pending' AND updated_at < ?`
	if _, err := s.db.Exec(query, tenantID, cutoff); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete resolved conflicts", err)
	}
	return nil
}

// DeletePendingBefore removes pending conflicts created before the cutoff.
// Used by retention cleanup.
func (s *ConflictStore) DeletePendingBefore(tenantID string, cutoff int64) error {
	query := `DELETE FROM record_conflicts WHERE tenant_id = ? AND status = 'pending' AND created_at < ?`
	if _, err := s.db.Exec(query, tenantID, cutoff); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete pending conflicts", err)
	}
	return nil
}

func scanConflict(row rowScanner) (*models.RecordConflict, error) {
	var c models.RecordConflict
	var orgID, resolution, baseLogID, incomingLogID, incomingActor, resolvedBy sql.NullString
	var resolvedAt sql.NullInt64
	err := row.Scan(
		&c.ID, &c.TenantID, &orgID, &c.ResourceKind, &c.ResourceID, &c.Status,
		&resolution, &baseLogID, &incomingLogID, &c.ConflictActorUserID,
		&incomingActor, &resolvedBy, &resolvedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if orgID.Valid {
		c.OrganizationID = &orgID.String
	}
	c.Resolution = models.ConflictResolution(resolution.String)
	c.BaseActionLogID = baseLogID.String
	c.IncomingActionLogID = incomingLogID.String
	c.IncomingActorUserID = incomingActor.String
	c.ResolvedByUserID = resolvedBy.String
	c.ResolvedAt = resolvedAt.Int64
	return &c, nil
}
