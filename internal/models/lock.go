package models

import "time"

// LockStrategy selects the concurrency-control strategy for a lock.
type LockStrategy string

const (
	// LockStrategyOptimistic validates writes against a base version at
	// commit time; concurrent editing is allowed.
	LockStrategyOptimistic LockStrategy = "optimistic"
	// LockStrategyPessimistic grants the lock holder exclusive write access.
	LockStrategyPessimistic LockStrategy = "pessimistic"
)

// LockStatus represents the lifecycle state of a record lock.
type LockStatus string

const (
	LockStatusActive        LockStatus = "active"
	LockStatusReleased      LockStatus = "released"
	LockStatusExpired       LockStatus = "expired"
	LockStatusForceReleased LockStatus = "force_released"
)

// RecordLock is an in-progress edit claim on one resource instance.
// At most one active lock may exist per (tenant, organization-or-null,
// resource kind, resource id) scope; the storage layer enforces this with a
// partial unique index.
type RecordLock struct {
	ID               UUID         `db:"id" json:"id"`
	TenantID         string       `db:"tenant_id" json:"tenant_id"`
	OrganizationID   *string      `db:"organization_id" json:"organization_id,omitempty"`
	ResourceKind     string       `db:"resource_kind" json:"resource_kind"`
	ResourceID       string       `db:"resource_id" json:"resource_id"`
	Token            string       `db:"token" json:"-"`
	Strategy         LockStrategy `db:"strategy" json:"strategy"`
	Status           LockStatus   `db:"status" json:"status"`
	LockedByUserID   string       `db:"locked_by_user_id" json:"locked_by_user_id"`
	LockedByIP       string       `db:"locked_by_ip" json:"locked_by_ip,omitempty"`
	BaseActionLogID  string       `db:"base_action_log_id" json:"base_action_log_id,omitempty"`
	LockedAt         int64        `db:"locked_at" json:"locked_at"`
	LastHeartbeatAt  int64        `db:"last_heartbeat_at" json:"last_heartbeat_at"`
	ExpiresAt        int64        `db:"expires_at" json:"expires_at"`
	ReleaseReason    string       `db:"release_reason" json:"release_reason,omitempty"`
	ReleasedByUserID string       `db:"released_by_user_id" json:"released_by_user_id,omitempty"`
	ReleasedAt       int64        `db:"released_at" json:"released_at,omitempty"`
	UpdatedAt        int64        `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for RecordLock.
func (RecordLock) TableName() string {
	return "record_locks"
}

// IsExpired reports whether an active lock has outlived its expiry.
func (l *RecordLock) IsExpired(now int64) bool {
	return l.Status == LockStatusActive && l.ExpiresAt > 0 && l.ExpiresAt <= now
}

// ExpiresAtTime returns ExpiresAt as time.Time.
func (l *RecordLock) ExpiresAtTime() time.Time {
	return time.Unix(l.ExpiresAt, 0)
}

// Touch updates the UpdatedAt timestamp.
func (l *RecordLock) Touch() {
	l.UpdatedAt = time.Now().Unix()
}

// LockView is the API representation of a lock. Token is only present on
// views handed to the lock owner; other users receive a read-only view.
type LockView struct {
	ID              UUID         `json:"id"`
	ResourceKind    string       `json:"resource_kind"`
	ResourceID      string       `json:"resource_id"`
	Strategy        LockStrategy `json:"strategy"`
	Status          LockStatus   `json:"status"`
	LockedByUserID  string       `json:"locked_by_user_id"`
	LockedAt        int64        `json:"locked_at"`
	LastHeartbeatAt int64        `json:"last_heartbeat_at"`
	ExpiresAt       int64        `json:"expires_at"`
	Token           string       `json:"token,omitempty"`
}

// View returns the read-only representation without the capability token.
func (l *RecordLock) View() LockView {
	return LockView{
		ID:              l.ID,
		ResourceKind:    l.ResourceKind,
		ResourceID:      l.ResourceID,
		Strategy:        l.Strategy,
		Status:          l.Status,
		LockedByUserID:  l.LockedByUserID,
		LockedAt:        l.LockedAt,
		LastHeartbeatAt: l.LastHeartbeatAt,
		ExpiresAt:       l.ExpiresAt,
	}
}

// OwnerView returns the representation handed to the lock holder, including
// the capability token.
func (l *RecordLock) OwnerView() LockView {
	v := l.View()
	v.Token = l.Token
	return v
}
