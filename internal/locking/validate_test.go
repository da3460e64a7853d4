package locking

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/quartzcrm/backend/internal/errors"
	"github.com/quartzcrm/backend/internal/models"
	"github.com/quartzcrm/backend/internal/settings"
)

func (e *testEnv) seedEntry(t *testing.T, actor string, createdAt int64, changes, after string) *models.ActionLogEntry {
	t.Helper()
	entry := &models.ActionLogEntry{
		TenantID:     "t1",
		ResourceKind: quote.Kind,
		ResourceID:   quote.ID,
		ActorUserID:  actor,
		CreatedAt:    createdAt,
	}
	if changes != "" {
		entry.Changes = json.RawMessage(changes)
	}
	if after != "" {
		entry.SnapshotAfter = json.RawMessage(after)
	}
	require.NoError(t, e.history.Insert(entry))
	return entry
}

func (e *testEnv) conflictRow(t *testing.T) *models.RecordConflict {
	t.Helper()
	var c models.RecordConflict
	var resolution, resolvedBy sql.NullString
	err := e.conn.QueryRow(
		`SELECT id, status, resolution, resolved_by_user_id, conflict_actor_user_id
		 FROM record_conflicts ORDER BY created_at DESC LIMIT 1`).
		Scan(&c.ID, &c.Status, &resolution, &resolvedBy, &c.ConflictActorUserID)
	require.NoError(t, err)
	c.Resolution = models.ConflictResolution(resolution.String)
	c.ResolvedByUserID = resolvedBy.String
	return &c
}

func conflictFromErr(t *testing.T, err error) ConflictPayload {
	t.Helper()
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.ErrRecordLockConflict, appErr.Code)
	require.Equal(t, 409, appErr.HTTPStatus())
	details := appErr.Details.(map[string]interface{})
	return details["conflict"].(ConflictPayload)
}

// TestParseMutationHeaders verifies malformed header values degrade to
// absent instead of erroring.
func TestParseMutationHeaders(t *testing.T) {
	headers := map[string]string{
		HeaderLockKind:       " sales.quote ",
		HeaderLockResourceID: "q1",
		HeaderLockToken:      "11111111-1111-4111-8111-111111111111",
		HeaderLockBaseLogID:  "not-a-uuid",
		HeaderLockConflictID: "",
		HeaderLockResolution: "accept_mine",
	}
	h := ParseMutationHeaders(func(name string) string { return headers[name] })

	if h.ResourceKind != "sales.quote" || h.ResourceID != "q1" {
		t.Errorf("resource = %q/%q, want sales.quote/q1", h.ResourceKind, h.ResourceID)
	}
	if h.Token != "11111111-1111-4111-8111-111111111111" {
		t.Errorf("Token = %q, want the valid uuid", h.Token)
	}
	if h.BaseLogID != "" {
		t.Errorf("BaseLogID = %q, want dropped garbage", h.BaseLogID)
	}
	if h.Resolution != models.ResolutionAcceptMine {
		t.Errorf("Resolution = %q, want accept_mine", h.Resolution)
	}

	headers[HeaderLockResolution] = "yolo"
	if h := ParseMutationHeaders(func(name string) string { return headers[name] }); h.Resolution != "" {
		t.Errorf("Resolution = %q, want dropped unknown value", h.Resolution)
	}
}

func TestValidateMutationDisabledResource(t *testing.T) {
	env := newTestEnv(t)
	env.setSettings(t, func(c *settings.RecordLockSettings) {
		c.Enabled = false
	})

	result, err := env.svc.ValidateMutation(scopeFor("user-a"), quote, MutationUpdate, MutationHeaders{}, nil)
	require.NoError(t, err)
	require.False(t, result.ShouldReleaseOnSuccess)
}

func TestValidatePessimisticOtherHolder(t *testing.T) {
	env := newTestEnv(t)
	env.setSettings(t, func(c *settings.RecordLockSettings) {
		c.Strategy = models.LockStrategyPessimistic
	})

	_, err := env.svc.Acquire(scopeFor("user-a"), quote, "")
	require.NoError(t, err)

	_, err = env.svc.ValidateMutation(scopeFor("user-b"), quote, MutationUpdate, MutationHeaders{}, nil)
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.ErrRecordLocked, appErr.Code)
}

func TestValidatePessimisticTokenGate(t *testing.T) {
	env := newTestEnv(t)
	env.setSettings(t, func(c *settings.RecordLockSettings) {
		c.Strategy = models.LockStrategyPessimistic
	})

	result, err := env.svc.Acquire(scopeFor("user-a"), quote, "")
	require.NoError(t, err)

	// The owner without the token is treated like any stale client
	_, err = env.svc.ValidateMutation(scopeFor("user-a"), quote, MutationUpdate, MutationHeaders{}, nil)
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.ErrRecordLocked))

	ok, err := env.svc.ValidateMutation(scopeFor("user-a"), quote, MutationUpdate,
		MutationHeaders{Token: result.Lock.Token}, nil)
	require.NoError(t, err)
	require.True(t, ok.ShouldReleaseOnSuccess)
}

func TestValidatePessimisticUnlockedResource(t *testing.T) {
	env := newTestEnv(t)
	env.setSettings(t, func(c *settings.RecordLockSettings) {
		c.Strategy = models.LockStrategyPessimistic
	})

	result, err := env.svc.ValidateMutation(scopeFor("user-a"), quote, MutationUpdate, MutationHeaders{}, nil)
	require.NoError(t, err)
	require.True(t, result.ShouldReleaseOnSuccess)
}

func TestValidateOptimisticMatchingBase(t *testing.T) {
	env := newTestEnv(t)
	latest := env.seedEntry(t, "user-b", env.clock.now(), "", `{"total": 100}`)

	result, err := env.svc.ValidateMutation(scopeFor("user-a"), quote, MutationUpdate,
		MutationHeaders{BaseLogID: string(latest.ID)}, nil)
	require.NoError(t, err)
	require.True(t, result.ShouldReleaseOnSuccess)
}

func TestValidateOptimisticStaleBase(t *testing.T) {
	env := newTestEnv(t)
	base := env.seedEntry(t, "user-a", env.clock.now()-100, "", `{"total": 100, "customer_name": "Acme"}`)
	incoming := env.seedEntry(t, "user-b", env.clock.now()-10,
		`{"total": {"before": 100, "after": 150}}`, `{"total": 150, "customer_name": "Acme"}`)

	_, err := env.svc.ValidateMutation(scopeFor("user-a"), quote, MutationUpdate,
		MutationHeaders{BaseLogID: string(base.ID)},
		map[string]interface{}{"total": 120.0})
	require.Error(t, err)

	payload := conflictFromErr(t, err)
	require.NotEmpty(t, payload.ID)
	require.Equal(t, string(incoming.ID), payload.IncomingActionLogID)
	require.Equal(t, string(base.ID), payload.BaseActionLogID)
	require.True(t, payload.CanOverrideIncoming)
	require.Len(t, payload.ResolutionOptions, 3)

	require.Len(t, payload.Changes, 1)
	ch := payload.Changes[0]
	require.Equal(t, "total", ch.Field)
	require.Equal(t, 100.0, ch.BaseValue)
	require.Equal(t, 150.0, ch.IncomingValue)
	require.Equal(t, 120.0, ch.MineValue)

	stored := env.conflictRow(t)
	require.Equal(t, models.ConflictStatusPending, stored.Status)
	require.Equal(t, "user-a", stored.ConflictActorUserID)
	require.Equal(t, 1, env.events.count(EventConflictDetected))
}

func TestValidateOptimisticAcceptMineAutoResolves(t *testing.T) {
	env := newTestEnv(t)
	base := env.seedEntry(t, "user-a", env.clock.now()-100, "", `{"total": 100}`)
	env.seedEntry(t, "user-b", env.clock.now()-10, "", `{"total": 150}`)

	result, err := env.svc.ValidateMutation(scopeFor("user-a"), quote, MutationUpdate,
		MutationHeaders{BaseLogID: string(base.ID), Resolution: models.ResolutionAcceptMine},
		map[string]interface{}{"total": 120.0})
	require.NoError(t, err, "a pre-declared authorized override lets the write proceed")
	require.True(t, result.ShouldReleaseOnSuccess)

	stored := env.conflictRow(t)
	require.Equal(t, models.ConflictStatusResolvedAcceptMine, stored.Status)
	require.Equal(t, models.ResolutionAcceptMine, stored.Resolution)
	require.Equal(t, "user-a", stored.ResolvedByUserID)
	require.Equal(t, 1, env.events.count(EventConflictResolved))
	require.Equal(t, 0, env.events.count(EventConflictDetected))
}

func TestValidateOverrideRequiresAuthorization(t *testing.T) {
	env := newTestEnv(t)
	env.caps.set(false)
	base := env.seedEntry(t, "user-a", env.clock.now()-100, "", `{"total": 100}`)
	env.seedEntry(t, "user-b", env.clock.now()-10, "", `{"total": 150}`)

	_, err := env.svc.ValidateMutation(scopeFor("user-a"), quote, MutationUpdate,
		MutationHeaders{BaseLogID: string(base.ID), Resolution: models.ResolutionAcceptMine}, nil)
	require.Error(t, err, "declared intent without the capability must still conflict")

	payload := conflictFromErr(t, err)
	require.False(t, payload.CanOverrideIncoming)
	require.Empty(t, payload.ResolutionOptions)

	stored := env.conflictRow(t)
	require.Equal(t, models.ConflictStatusPending, stored.Status)
}

func TestValidateOverrideRequiresTenantSetting(t *testing.T) {
	env := newTestEnv(t)
	env.setSettings(t, func(c *settings.RecordLockSettings) {
		c.AllowIncomingOverride = false
	})
	base := env.seedEntry(t, "user-a", env.clock.now()-100, "", `{"total": 100}`)
	env.seedEntry(t, "user-b", env.clock.now()-10, "", `{"total": 150}`)

	_, err := env.svc.ValidateMutation(scopeFor("user-a"), quote, MutationUpdate,
		MutationHeaders{BaseLogID: string(base.ID), Resolution: models.ResolutionAcceptMine}, nil)
	require.Error(t, err)
	payload := conflictFromErr(t, err)
	require.False(t, payload.AllowIncomingOverride)
	require.False(t, payload.CanOverrideIncoming)
}

func TestValidateLockHeldForeignChange(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.Acquire(scopeFor("user-a"), quote, "")
	require.NoError(t, err)
	require.True(t, result.Acquired)

	env.clock.advance(10)
	env.seedEntry(t, "user-b", env.clock.now(), "", `{"total": 150}`)

	// No base version declared, but the resource changed under the caller's
	// edit session.
	_, err = env.svc.ValidateMutation(scopeFor("user-a"), quote, MutationUpdate, MutationHeaders{}, nil)
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.ErrRecordLockConflict))
}

func TestValidateReferencedConflictRetry(t *testing.T) {
	env := newTestEnv(t)
	base := env.seedEntry(t, "user-a", env.clock.now()-100, "", `{"total": 100}`)
	env.seedEntry(t, "user-b", env.clock.now()-10, "", `{"total": 150}`)

	_, err := env.svc.ValidateMutation(scopeFor("user-a"), quote, MutationUpdate,
		MutationHeaders{BaseLogID: string(base.ID), Resolution: models.ResolutionAcceptMine}, nil)
	require.NoError(t, err)
	resolved := env.conflictRow(t)

	// The identical retry by the same actor passes without a second event.
	result, err := env.svc.ValidateMutation(scopeFor("user-a"), quote, MutationUpdate,
		MutationHeaders{
			BaseLogID:  string(base.ID),
			ConflictID: string(resolved.ID),
			Resolution: models.ResolutionAcceptMine,
		}, nil)
	require.NoError(t, err)
	require.True(t, result.ShouldReleaseOnSuccess)
	require.Equal(t, 1, env.events.count(EventConflictResolved))

	// A different actor referencing the same conflict still conflicts.
	_, err = env.svc.ValidateMutation(scopeFor("user-c"), quote, MutationUpdate,
		MutationHeaders{
			BaseLogID:  string(base.ID),
			ConflictID: string(resolved.ID),
			Resolution: models.ResolutionAcceptMine,
		}, nil)
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.ErrRecordLockConflict))
}

func TestValidateReferencedPendingConflictResolves(t *testing.T) {
	env := newTestEnv(t)
	base := env.seedEntry(t, "user-a", env.clock.now()-100, "", `{"total": 100}`)
	env.seedEntry(t, "user-b", env.clock.now()-10, "", `{"total": 150}`)

	// First attempt without intent records a pending conflict.
	_, err := env.svc.ValidateMutation(scopeFor("user-a"), quote, MutationUpdate,
		MutationHeaders{BaseLogID: string(base.ID)}, nil)
	require.Error(t, err)
	pending := env.conflictRow(t)
	require.Equal(t, models.ConflictStatusPending, pending.Status)

	// Second attempt references it with accept_mine and goes through.
	result, err := env.svc.ValidateMutation(scopeFor("user-a"), quote, MutationUpdate,
		MutationHeaders{
			BaseLogID:  string(base.ID),
			ConflictID: string(pending.ID),
			Resolution: models.ResolutionAcceptMine,
		}, nil)
	require.NoError(t, err)
	require.True(t, result.ShouldReleaseOnSuccess)

	stored := env.conflictRow(t)
	require.Equal(t, models.ConflictStatusResolvedAcceptMine, stored.Status)
}

func TestValidateUnknownConflictIDIgnored(t *testing.T) {
	env := newTestEnv(t)
	latest := env.seedEntry(t, "user-b", env.clock.now(), "", `{"total": 100}`)

	result, err := env.svc.ValidateMutation(scopeFor("user-a"), quote, MutationUpdate,
		MutationHeaders{
			BaseLogID:  string(latest.ID),
			ConflictID: "77777777-7777-4777-8777-777777777777",
		}, nil)
	require.NoError(t, err, "an unknown conflict id degrades to no referenced conflict")
	require.True(t, result.ShouldReleaseOnSuccess)
}
