package models

import (
	"encoding/json"
	"time"
)

// ActionLogEntry is one recorded change to a resource. Entries are produced
// by the audit subsystem; the locking engine consumes them as base versions
// for optimistic conflict detection and as diff sources for conflict
// payloads.
type ActionLogEntry struct {
	ID             UUID            `db:"id" json:"id"`
	TenantID       string          `db:"tenant_id" json:"tenant_id"`
	OrganizationID *string         `db:"organization_id" json:"organization_id,omitempty"`
	ResourceKind   string          `db:"resource_kind" json:"resource_kind"`
	ResourceID     string          `db:"resource_id" json:"resource_id"`
	ActorUserID    string          `db:"actor_user_id" json:"actor_user_id"`
	SnapshotBefore json.RawMessage `db:"snapshot_before" json:"snapshot_before,omitempty"`
	SnapshotAfter  json.RawMessage `db:"snapshot_after" json:"snapshot_after,omitempty"`
	Changes        json.RawMessage `db:"changes" json:"changes,omitempty"`
	CreatedAt      int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for ActionLogEntry.
func (ActionLogEntry) TableName() string {
	return "action_log"
}

// CreatedAtTime returns CreatedAt as time.Time.
func (e *ActionLogEntry) CreatedAtTime() time.Time {
	return time.Unix(e.CreatedAt, 0)
}

// BeforeMap decodes the before-snapshot into a generic map. Malformed or
// missing snapshots decode to nil rather than erroring; snapshot contents
// are external data with no schema guarantee.
func (e *ActionLogEntry) BeforeMap() map[string]interface{} {
	return decodeMap(e.SnapshotBefore)
}

// AfterMap decodes the after-snapshot into a generic map.
func (e *ActionLogEntry) AfterMap() map[string]interface{} {
	return decodeMap(e.SnapshotAfter)
}

// ChangesMap decodes the structured field-diff map, if present.
func (e *ActionLogEntry) ChangesMap() map[string]interface{} {
	return decodeMap(e.Changes)
}

func decodeMap(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
