package locking

import (
	"sort"

	apperrors "github.com/quartzcrm/backend/internal/errors"
	"github.com/quartzcrm/backend/internal/locking/diff"
	"github.com/quartzcrm/backend/internal/models"
	"github.com/quartzcrm/backend/internal/settings"
)

// maxConflictChanges caps the field change list of a conflict payload.
const maxConflictChanges = 25

// ConflictPayload is the structured body of a record_lock_conflict error,
// giving the caller everything needed to render a resolution dialog.
type ConflictPayload struct {
	ID                    models.UUID                 `json:"id"`
	BaseActionLogID       string                      `json:"base_action_log_id,omitempty"`
	IncomingActionLogID   string                      `json:"incoming_action_log_id,omitempty"`
	AllowIncomingOverride bool                        `json:"allow_incoming_override"`
	CanOverrideIncoming   bool                        `json:"can_override_incoming"`
	ResolutionOptions     []models.ConflictResolution `json:"resolution_options"`
	Changes               []models.FieldChange        `json:"changes"`
}

func (s *Service) conflictError(cfg settings.RecordLockSettings, c *models.RecordConflict, lock *models.RecordLock, payload map[string]interface{}, canOverride bool) error {
	details := map[string]interface{}{
		"conflict": s.toConflictPayload(cfg, c, payload, canOverride),
	}
	if lock != nil {
		details["lock"] = lock.View()
	}
	return apperrors.New(apperrors.ErrRecordLockConflict, "record was changed by another user").
		WithDetails(details)
}

// toConflictPayload builds the resolution payload for a conflict, deriving
// per-field changes from the base and incoming change records.
func (s *Service) toConflictPayload(cfg settings.RecordLockSettings, c *models.RecordConflict, payload map[string]interface{}, canOverride bool) ConflictPayload {
	base := s.scopedEntry(c, c.BaseActionLogID)
	incoming := s.scopedEntry(c, c.IncomingActionLogID)

	out := ConflictPayload{
		ID:                    c.ID,
		BaseActionLogID:       c.BaseActionLogID,
		IncomingActionLogID:   c.IncomingActionLogID,
		AllowIncomingOverride: cfg.AllowIncomingOverride,
		CanOverrideIncoming:   canOverride,
		ResolutionOptions:     []models.ConflictResolution{},
		Changes:               buildFieldChanges(base, incoming, payload),
	}
	if canOverride {
		out.ResolutionOptions = []models.ConflictResolution{
			models.ResolutionAcceptIncoming,
			models.ResolutionAcceptMine,
			models.ResolutionMerged,
		}
	}
	return out
}

// scopedEntry loads a change record and validates that it belongs to the
// conflict's tenant/org/resource scope. Cross-scope records are treated as
// not found; lookup failures degrade the payload rather than failing it.
func (s *Service) scopedEntry(c *models.RecordConflict, id string) *models.ActionLogEntry {
	if id == "" {
		return nil
	}
	e, err := s.history.FindByID(id)
	if err != nil {
		s.log.Warn("change record lookup failed", map[string]interface{}{
			"action_log_id": id,
			"error":         err.Error(),
		})
		return nil
	}
	if e == nil {
		return nil
	}
	if e.TenantID != c.TenantID || e.ResourceKind != c.ResourceKind || e.ResourceID != c.ResourceID {
		return nil
	}
	// Org-less entries are tenant-wide and in scope for any conflict; an
	// org-scoped entry must match the conflict's organization.
	if e.OrganizationID != nil {
		if c.OrganizationID == nil || *e.OrganizationID != *c.OrganizationID {
			return nil
		}
	}
	return e
}

// buildFieldChanges derives the field-level change list: the incoming
// record's structured diff map when present, else a recursive diff of its
// snapshots, else the raw mutation payload against the incoming snapshot.
// Fields the caller touched with a different value are listed first; both
// groups sort lexicographically by path.
func buildFieldChanges(base, incoming *models.ActionLogEntry, payload map[string]interface{}) []models.FieldChange {
	var baseAfter, incomingAfter map[string]interface{}
	if base != nil {
		baseAfter = base.AfterMap()
	}
	if incoming != nil {
		incomingAfter = incoming.AfterMap()
	}

	type rawChange struct {
		base     interface{}
		incoming interface{}
	}
	changes := make(map[string]rawChange)

	switch {
	case incoming != nil && incoming.ChangesMap() != nil:
		for field, v := range incoming.ChangesMap() {
			if obj, ok := v.(map[string]interface{}); ok {
				before, hasBefore := obj["before"]
				after, hasAfter := obj["after"]
				if hasBefore && hasAfter {
					changes[field] = rawChange{base: before, incoming: after}
					continue
				}
			}
			bv, _ := diff.LooseLookup(baseAfter, field)
			changes[field] = rawChange{base: bv, incoming: v}
		}
	case incoming != nil && (incoming.BeforeMap() != nil || incomingAfter != nil):
		for path, ch := range diff.Snapshots(incoming.BeforeMap(), incomingAfter) {
			changes[path] = rawChange{base: ch.Before, incoming: ch.After}
		}
	case payload != nil && incomingAfter != nil:
		for field, mine := range payload {
			iv, ok := diff.LooseLookup(incomingAfter, field)
			if !ok || diff.Equal(iv, mine) {
				continue
			}
			bv, _ := diff.LooseLookup(baseAfter, field)
			changes[field] = rawChange{base: bv, incoming: iv}
		}
	}

	var prioritized, rest []models.FieldChange
	for field, ch := range changes {
		fc := models.FieldChange{
			Field:         field,
			BaseValue:     ch.base,
			IncomingValue: ch.incoming,
			DisplayValue:  diff.FormatValue(ch.incoming),
		}
		mine, mineTouched := diff.LooseLookup(payload, field)
		if mineTouched {
			fc.MineValue = mine
		}
		if mineTouched && !diff.Equal(mine, ch.incoming) {
			prioritized = append(prioritized, fc)
		} else {
			rest = append(rest, fc)
		}
	}
	byField := func(list []models.FieldChange) func(i, j int) bool {
		return func(i, j int) bool { return list[i].Field < list[j].Field }
	}
	sort.Slice(prioritized, byField(prioritized))
	sort.Slice(rest, byField(rest))

	out := append(prioritized, rest...)
	if len(out) > maxConflictChanges {
		out = out[:maxConflictChanges]
	}
	return out
}
