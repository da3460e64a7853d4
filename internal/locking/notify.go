package locking

import (
	"sort"
	"strings"

	"github.com/quartzcrm/backend/internal/locking/diff"
	"github.com/quartzcrm/backend/internal/models"
)

// maxSummaryFields caps the field-name summary of a notification.
const maxSummaryFields = 12

// notifyFallbackWindow is the minimum lookback for just-released holders.
const notifyFallbackWindow = 60

// NotifyIncomingChanges fans out a single incoming_changes.available event
// to the other holders of a resource after a successful update. Holders are
// the current active lock owners; when none remain, the search broadens to
// locks touched within max(timeout, 60s) to catch just-released sessions.
func (s *Service) NotifyIncomingChanges(scope Scope, res Resource) error {
	cfg, err := s.settings.GetSettings(scope.TenantID)
	if err != nil {
		return err
	}
	if !cfg.NotifyOnConflict || !cfg.EnabledForResource(res.Kind) {
		return nil
	}

	recipients, err := s.activeHolders(scope, res)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		window := int64(cfg.TimeoutSeconds)
		if window < notifyFallbackWindow {
			window = notifyFallbackWindow
		}
		touched, err := s.locks.ListTouchedSince(scope.TenantID, scope.OrganizationID, res.Kind, res.ID, s.now()-window)
		if err != nil {
			return err
		}
		recipients = distinctHolders(touched, scope.UserID)
	}
	if len(recipients) == 0 {
		return nil
	}

	entry, err := s.history.FindLatestByActor(scope.TenantID, scope.OrganizationID, res.Kind, res.ID, scope.UserID)
	if err != nil {
		return err
	}
	if entry == nil {
		entry, err = s.history.FindLatest(scope.TenantID, scope.OrganizationID, res.Kind, res.ID)
		if err != nil {
			return err
		}
	}

	payload := map[string]interface{}{
		"tenant_id":       scope.TenantID,
		"organization_id": scope.OrganizationID,
		"resource_kind":   res.Kind,
		"resource_id":     res.ID,
		"actor_user_id":   scope.UserID,
		"recipients":      recipients,
		"changed_fields":  changedFieldSummary(entry),
	}
	if entry != nil {
		payload["action_log_id"] = entry.ID
	}
	s.emit(EventIncomingChanges, payload)
	return nil
}

// activeHolders returns the distinct owners of live locks on the resource,
// excluding the mutator, lazily expiring overdue rows along the way.
func (s *Service) activeHolders(scope Scope, res Resource) ([]string, error) {
	locks, err := s.locks.ListActive(scope.TenantID, scope.OrganizationID, res.Kind, res.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	live := locks[:0]
	for _, l := range locks {
		if l.IsExpired(now) {
			if err := s.markExpired(l); err != nil {
				return nil, err
			}
			continue
		}
		live = append(live, l)
	}
	return distinctHolders(live, scope.UserID), nil
}

func distinctHolders(locks []*models.RecordLock, exclude string) []string {
	seen := make(map[string]bool, len(locks))
	var out []string
	for _, l := range locks {
		u := l.LockedByUserID
		if u == exclude || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// changedFieldSummary renders the changed field names of a change record as
// a short human-readable list: Title Cased, prefix-stripped, capped, comma
// joined; "-" when nothing is known.
func changedFieldSummary(entry *models.ActionLogEntry) string {
	if entry == nil {
		return "-"
	}
	var paths []string
	if cm := entry.ChangesMap(); cm != nil {
		for p := range cm {
			paths = append(paths, p)
		}
	} else {
		for p := range diff.Snapshots(entry.BeforeMap(), entry.AfterMap()) {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return "-"
	}
	sort.Strings(paths)
	if len(paths) > maxSummaryFields {
		paths = paths[:maxSummaryFields]
	}
	labels := make([]string, len(paths))
	for i, p := range paths {
		labels[i] = diff.FieldLabel(p)
	}
	return strings.Join(labels, ", ")
}
