package locking

import (
	"strings"
	"time"

	"github.com/quartzcrm/backend/internal/models"
)

// contentionThrottle caps lock.contended emission to once per tuple within
// the window. Process-local; a restart resets the window, which only means
// one extra event.
const contentionThrottle = 15 * time.Second

// emitContended publishes a lock.contended event for a blocked acquire,
// throttled per (tenant, org, resource, contender) tuple.
func (s *Service) emitContended(scope Scope, res Resource, lock *models.RecordLock) {
	if !s.throttleOff {
		key := contentionKey(scope, res)
		if _, hit := s.contention.Get(key); hit {
			return
		}
		s.contention.Set(key, struct{}{}, contentionThrottle)
	}
	s.emit(EventLockContended, map[string]interface{}{
		"tenant_id":       scope.TenantID,
		"organization_id": scope.OrganizationID,
		"resource_kind":   res.Kind,
		"resource_id":     res.ID,
		"contender_id":    scope.UserID,
		"lock":            lock.View(),
	})
}

func contentionKey(scope Scope, res Resource) string {
	org := ""
	if scope.OrganizationID != nil {
		org = *scope.OrganizationID
	}
	return strings.Join([]string{scope.TenantID, org, res.Kind, res.ID, scope.UserID}, "|")
}
