package locking

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quartzcrm/backend/internal/models"
)

func (e *testEnv) seedPendingConflict(t *testing.T, actor string) *models.RecordConflict {
	t.Helper()
	c := &models.RecordConflict{
		TenantID:            "t1",
		ResourceKind:        quote.Kind,
		ResourceID:          quote.ID,
		Status:              models.ConflictStatusPending,
		ConflictActorUserID: actor,
	}
	require.NoError(t, e.conflicts.Insert(c))
	return c
}

func TestResolveConflictByID(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedPendingConflict(t, "user-a")

	ok, err := env.svc.ResolveConflictByID(scopeFor("user-a"), string(c.ID), models.ResolutionAcceptMine)
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := env.conflicts.GetByID("t1", string(c.ID))
	require.NoError(t, err)
	require.Equal(t, models.ConflictStatusResolvedAcceptMine, stored.Status)
	require.Equal(t, "user-a", stored.ResolvedByUserID)
	require.Equal(t, 1, env.events.count(EventConflictResolved))
}

func TestResolveConflictByIDIdempotentRetry(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedPendingConflict(t, "user-a")

	ok, err := env.svc.ResolveConflictByID(scopeFor("user-a"), string(c.ID), models.ResolutionAcceptMine)
	require.NoError(t, err)
	require.True(t, ok)

	// Same actor, same resolution: success without a second event.
	ok, err = env.svc.ResolveConflictByID(scopeFor("user-a"), string(c.ID), models.ResolutionAcceptMine)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, env.events.count(EventConflictResolved))

	// Different actor or different resolution: refused.
	ok, err = env.svc.ResolveConflictByID(scopeFor("user-b"), string(c.ID), models.ResolutionAcceptMine)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = env.svc.ResolveConflictByID(scopeFor("user-a"), string(c.ID), models.ResolutionMerged)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResolveConflictByIDNotOwned(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedPendingConflict(t, "user-a")

	ok, err := env.svc.ResolveConflictByID(scopeFor("user-b"), string(c.ID), models.ResolutionAcceptIncoming)
	require.NoError(t, err)
	require.False(t, ok)

	stored, err := env.conflicts.GetByID("t1", string(c.ID))
	require.NoError(t, err)
	require.True(t, stored.IsPending())
}

func TestResolveConflictByIDAuthorization(t *testing.T) {
	env := newTestEnv(t)
	env.caps.set(false)

	// Keeping one's own write needs the override capability.
	c := env.seedPendingConflict(t, "user-a")
	ok, err := env.svc.ResolveConflictByID(scopeFor("user-a"), string(c.ID), models.ResolutionAcceptMine)
	require.NoError(t, err)
	require.False(t, ok)

	// Yielding to the incoming change never does.
	ok, err = env.svc.ResolveConflictByID(scopeFor("user-a"), string(c.ID), models.ResolutionAcceptIncoming)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestResolveConflictByIDMissing(t *testing.T) {
	env := newTestEnv(t)

	ok, err := env.svc.ResolveConflictByID(scopeFor("user-a"),
		"77777777-7777-4777-8777-777777777777", models.ResolutionAcceptIncoming)
	require.NoError(t, err)
	require.False(t, ok)
}
