package locking

import (
	"time"
)

// Retention windows for terminal records.
const (
	cleanupInterval = 5 * time.Minute

	lockRetention             = 3 * 24 * time.Hour
	resolvedConflictRetention = 7 * 24 * time.Hour
	pendingConflictRetention  = 24 * time.Hour
)

// scheduleCleanup triggers a best-effort retention pass for the tenant, at
// most once per cleanupInterval and never concurrently for the same tenant.
// Failures are swallowed; cleanup must not break a lock workflow.
func (s *Service) scheduleCleanup(tenantID string) {
	if _, recent := s.cleanupMark.Get(tenantID); recent {
		return
	}
	s.cleanupMark.Set(tenantID, struct{}{}, cleanupInterval)

	if _, busy := s.cleanupBusy.LoadOrStore(tenantID, struct{}{}); busy {
		return
	}
	go func() {
		defer s.cleanupBusy.Delete(tenantID)
		s.runCleanup(tenantID)
	}()
}

// runCleanup deletes terminal records past their retention window. The
// deletes only touch rows that are already logically dead, so running
// alongside request-path operations is safe.
func (s *Service) runCleanup(tenantID string) {
	now := s.now()
	ctx := map[string]interface{}{"tenant_id": tenantID}

	if err := s.locks.DeleteNonActiveBefore(tenantID, now-int64(lockRetention.Seconds())); err != nil {
		s.log.Warn("lock retention cleanup failed", ctx, map[string]interface{}{"error": err.Error()})
	}
	if err := s.conflicts.DeleteResolvedBefore(tenantID, now-int64(resolvedConflictRetention.Seconds())); err != nil {
		s.log.Warn("resolved conflict cleanup failed", ctx, map[string]interface{}{"error": err.Error()})
	}
	if err := s.conflicts.DeletePendingBefore(tenantID, now-int64(pendingConflictRetention.Seconds())); err != nil {
		s.log.Warn("pending conflict cleanup failed", ctx, map[string]interface{}{"error": err.Error()})
	}
}
