package models

import "time"

// ConflictStatus represents the lifecycle state of a record conflict.
type ConflictStatus string

const (
	ConflictStatusPending                ConflictStatus = "pending"
	ConflictStatusResolvedAcceptIncoming ConflictStatus = "resolved_accept_incoming"
	ConflictStatusResolvedAcceptMine     ConflictStatus = "resolved_accept_mine"
	ConflictStatusResolvedMerged         ConflictStatus = "resolved_merged"
)

// ConflictResolution is the caller's choice for settling a conflict.
type ConflictResolution string

const (
	ResolutionAcceptIncoming ConflictResolution = "accept_incoming"
	ResolutionAcceptMine     ConflictResolution = "accept_mine"
	ResolutionMerged         ConflictResolution = "merged"
	// ResolutionNormal is a valid header value meaning "no override intent".
	ResolutionNormal ConflictResolution = "normal"
)

// StatusForResolution maps a resolution choice to its terminal status.
// Returns false for unknown or non-terminal values.
func StatusForResolution(r ConflictResolution) (ConflictStatus, bool) {
	switch r {
	case ResolutionAcceptIncoming:
		return ConflictStatusResolvedAcceptIncoming, true
	case ResolutionAcceptMine:
		return ConflictStatusResolvedAcceptMine, true
	case ResolutionMerged:
		return ConflictStatusResolvedMerged, true
	}
	return "", false
}

// RecordConflict records a detected disagreement between a base edit and a
// competing incoming edit of the same resource.
type RecordConflict struct {
	ID                  UUID               `db:"id" json:"id"`
	TenantID            string             `db:"tenant_id" json:"tenant_id"`
	OrganizationID      *string            `db:"organization_id" json:"organization_id,omitempty"`
	ResourceKind        string             `db:"resource_kind" json:"resource_kind"`
	ResourceID          string             `db:"resource_id" json:"resource_id"`
	Status              ConflictStatus     `db:"status" json:"status"`
	Resolution          ConflictResolution `db:"resolution" json:"resolution,omitempty"`
	BaseActionLogID     string             `db:"base_action_log_id" json:"base_action_log_id,omitempty"`
	IncomingActionLogID string             `db:"incoming_action_log_id" json:"incoming_action_log_id,omitempty"`
	ConflictActorUserID string             `db:"conflict_actor_user_id" json:"conflict_actor_user_id"`
	IncomingActorUserID string             `db:"incoming_actor_user_id" json:"incoming_actor_user_id,omitempty"`
	ResolvedByUserID    string             `db:"resolved_by_user_id" json:"resolved_by_user_id,omitempty"`
	ResolvedAt          int64              `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt           int64              `db:"created_at" json:"created_at"`
	UpdatedAt           int64              `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for RecordConflict.
func (RecordConflict) TableName() string {
	return "record_conflicts"
}

// IsPending reports whether the conflict still awaits resolution.
func (c *RecordConflict) IsPending() bool {
	return c.Status == ConflictStatusPending
}

// ResolvedAtTime returns ResolvedAt as time.Time.
func (c *RecordConflict) ResolvedAtTime() time.Time {
	return time.Unix(c.ResolvedAt, 0)
}

// Touch updates the UpdatedAt timestamp.
func (c *RecordConflict) Touch() {
	c.UpdatedAt = time.Now().Unix()
}
