package db

import (
	"database/sql"
	"time"

	apperrors "github.com/quartzcrm/backend/internal/errors"
	"github.com/quartzcrm/backend/internal/models"
	"github.com/quartzcrm/backend/internal/uuid"
)

const lockColumns = `id, tenant_id, organization_id, resource_kind, resource_id, token, strategy,
	status, locked_by_user_id, locked_by_ip, base_action_log_id, locked_at, last_heartbeat_at,
	expires_at, release_reason, released_by_user_id, released_at, updated_at`

// LockStore provides persistence for record locks.
type LockStore struct {
	db *sql.DB
}

// NewLockStore creates a new LockStore.
func NewLockStore(db *sql.DB) *LockStore {
	return &LockStore{db: db}
}

// Insert creates a new lock row. A collision on the active-scope unique
// index is returned as an AppError with code ErrDuplicate so the service
// can re-read the winner instead of failing the caller.
func (s *LockStore) Insert(l *models.RecordLock) error {
	now := time.Now().Unix()
	if l.ID == "" {
		l.ID = models.UUID(uuid.New())
	}
	l.UpdatedAt = now

	query := `
	INSERT INTO record_locks (` + lockColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		l.ID, l.TenantID, l.OrganizationID, l.ResourceKind, l.ResourceID, l.Token, l.Strategy,
		l.Status, l.LockedByUserID, nullStr(l.LockedByIP), nullStr(l.BaseActionLogID),
		l.LockedAt, l.LastHeartbeatAt, l.ExpiresAt, nullStr(l.ReleaseReason),
		nullStr(l.ReleasedByUserID), nullInt(l.ReleasedAt), l.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Wrap(apperrors.ErrDuplicate, "active lock already exists for scope", err)
		}
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to insert lock", err)
	}
	return nil
}

// Update persists all mutable lock fields by id.
func (s *LockStore) Update(l *models.RecordLock) error {
	l.Touch()
	query := `
	UPDATE record_locks
	SET token = ?, strategy = ?, status = ?, locked_by_ip = ?, base_action_log_id = ?,
		last_heartbeat_at = ?, expires_at = ?, release_reason = ?, released_by_user_id = ?,
		released_at = ?, updated_at = ?
	WHERE id = ?
	`
	result, err := s.db.Exec(query,
		l.Token, l.Strategy, l.Status, nullStr(l.LockedByIP), nullStr(l.BaseActionLogID),
		l.LastHeartbeatAt, l.ExpiresAt, nullStr(l.ReleaseReason), nullStr(l.ReleasedByUserID),
		nullInt(l.ReleasedAt), l.UpdatedAt, l.ID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to update lock", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.New(apperrors.ErrNotFound, "lock not found: "+string(l.ID))
	}
	return nil
}

// FindActive returns the active lock for a scope, or nil if none exists.
// Organization-scoped lookup falls back to the tenant-wide (org-less) row.
func (s *LockStore) FindActive(tenantID string, orgID *string, kind, resourceID string) (*models.RecordLock, error) {
	if orgID != nil {
		l, err := s.findActiveOrg(tenantID, orgID, kind, resourceID)
		if err != nil || l != nil {
			return l, err
		}
	}
	return s.findActiveOrg(tenantID, nil, kind, resourceID)
}

func (s *LockStore) findActiveOrg(tenantID string, orgID *string, kind, resourceID string) (*models.RecordLock, error) {
	query := `
	SELECT ` + lockColumns + `
	FROM record_locks
	WHERE tenant_id = ? AND resource_kind = ? AND resource_id = ? AND status = 'active'
	`
	args := []interface{}{tenantID, kind, resourceID}
	if orgID != nil {
		query += ` AND organization_id = ?`
		args = append(args, *orgID)
	} else {
		query += ` AND organization_id IS NULL`
	}

	l, err := scanLock(s.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to find active lock", err)
	}
	return l, nil
}

// FindActiveOwned returns the active lock on a scope held by the given
// user, or nil.
func (s *LockStore) FindActiveOwned(tenantID string, orgID *string, kind, resourceID, userID string) (*models.RecordLock, error) {
	l, err := s.FindActive(tenantID, orgID, kind, resourceID)
	if err != nil || l == nil {
		return l, err
	}
	if l.LockedByUserID != userID {
		return nil, nil
	}
	return l, nil
}

// ListActive returns all active locks on a resource, including both the
// organization-scoped and the tenant-wide row when both exist.
func (s *LockStore) ListActive(tenantID string, orgID *string, kind, resourceID string) ([]*models.RecordLock, error) {
	query := `
	SELECT ` + lockColumns + `
	FROM record_locks
	WHERE tenant_id = ? AND resource_kind = ? AND resource_id = ? AND status = 'active'
	`
	args := []interface{}{tenantID, kind, resourceID}
	if orgID != nil {
		query += ` AND (organization_id = ? OR organization_id IS NULL)`
		args = append(args, *orgID)
	} else {
		query += ` AND organization_id IS NULL`
	}
	return s.queryLocks(query, args...)
}

// ListTouchedSince returns locks on a resource (any status) whose heartbeat
// or last update falls at or after the given unix timestamp.
func (s *LockStore) ListTouchedSince(tenantID string, orgID *string, kind, resourceID string, since int64) ([]*models.RecordLock, error) {
	query := `
	SELECT ` + lockColumns + `
	FROM record_locks
	WHERE tenant_id = ? AND resource_kind = ? AND resource_id = ?
		AND (last_heartbeat_at >= ? OR updated_at >= ?)
	`
	args := []interface{}{tenantID, kind, resourceID, since, since}
	if orgID != nil {
		query += ` AND (organization_id = ? OR organization_id IS NULL)`
		args = append(args, *orgID)
	} else {
		query += ` AND organization_id IS NULL`
	}
	return s.queryLocks(query, args...)
}

// DeleteNonActiveBefore removes terminal lock rows last updated before the
// cutoff. Used by retention cleanup.
func (s *LockStore) DeleteNonActiveBefore(tenantID string, cutoff int64) error {
	query := `DELETE FROM record_locks WHERE tenant_id = ? AND status != 'active' AND updated_at < ?`
	if _, err := s.db.Exec(query, tenantID, cutoff); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete stale locks", err)
	}
	return nil
}

func (s *LockStore) queryLocks(query string, args ...interface{}) ([]*models.RecordLock, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to query locks", err)
	}
	defer rows.Close()

	var locks []*models.RecordLock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan lock", err)
		}
		locks = append(locks, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to iterate locks", err)
	}
	return locks, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLock(row rowScanner) (*models.RecordLock, error) {
	var l models.RecordLock
	var orgID, lockedByIP, baseLogID, releaseReason, releasedBy sql.NullString
	var releasedAt sql.NullInt64
	err := row.Scan(
		&l.ID, &l.TenantID, &orgID, &l.ResourceKind, &l.ResourceID, &l.Token, &l.Strategy,
		&l.Status, &l.LockedByUserID, &lockedByIP, &baseLogID, &l.LockedAt, &l.LastHeartbeatAt,
		&l.ExpiresAt, &releaseReason, &releasedBy, &releasedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if orgID.Valid {
		l.OrganizationID = &orgID.String
	}
	l.LockedByIP = lockedByIP.String
	l.BaseActionLogID = baseLogID.String
	l.ReleaseReason = releaseReason.String
	l.ReleasedByUserID = releasedBy.String
	l.ReleasedAt = releasedAt.Int64
	return &l, nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}
