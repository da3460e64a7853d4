package settings

import (
	"database/sql"
	"encoding/json"
	"time"

	apperrors "github.com/quartzcrm/backend/internal/errors"
)

// settingsKey is the typed key under which record locking settings are
// stored in the tenant key-value table.
const settingsKey = "record_locking"

// Source is the consumed settings contract of the locking service.
type Source interface {
	GetSettings(tenantID string) (RecordLockSettings, error)
	SetSettings(tenantID string, s RecordLockSettings) error
}

// SQLStore persists tenant settings as JSON rows in SQLite.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a settings store backed by the given database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// GetSettings returns the tenant's record locking settings, normalized.
// Missing rows yield the defaults; fields absent from the stored JSON keep
// their default values.
func (s *SQLStore) GetSettings(tenantID string) (RecordLockSettings, error) {
	cfg := Default()

	var raw string
	err := s.db.QueryRow(
		`SELECT value FROM tenant_settings WHERE tenant_id = ? AND key = ?`,
		tenantID, settingsKey,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return cfg, nil
	}
	if err != nil {
		return cfg, apperrors.Wrap(apperrors.ErrDatabase, "failed to load settings", err)
	}

	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return Default(), apperrors.Wrap(apperrors.ErrInvalid, "malformed settings row", err)
	}
	return cfg.Normalized(), nil
}

// SetSettings stores the tenant's record locking settings, normalized.
func (s *SQLStore) SetSettings(tenantID string, cfg RecordLockSettings) error {
	raw, err := json.Marshal(cfg.Normalized())
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode settings", err)
	}

	query := `
	INSERT INTO tenant_settings (tenant_id, key, value, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(tenant_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := s.db.Exec(query, tenantID, settingsKey, string(raw), time.Now().Unix()); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to store settings", err)
	}
	return nil
}
