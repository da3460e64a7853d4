package locking

// Outbound domain event identifiers.
const (
	EventLockAcquired      = "lock.acquired"
	EventLockReleased      = "lock.released"
	EventLockForceReleased = "lock.force_released"
	EventLockContended     = "lock.contended"
	EventConflictDetected  = "conflict.detected"
	EventConflictResolved  = "conflict.resolved"
	EventIncomingChanges   = "incoming_changes.available"
)

// FeatureOverrideIncomingChanges is the capability required to resolve a
// conflict as accept_mine or merged, checked in addition to the tenant's
// AllowIncomingOverride setting.
const FeatureOverrideIncomingChanges = "record_locking.override_incoming_changes"
