package db

import (
	"testing"
	"time"

	apperrors "github.com/quartzcrm/backend/internal/errors"
	"github.com/quartzcrm/backend/internal/models"
)

func strPtr(s string) *string { return &s }

func testLock(userID string, orgID *string) *models.RecordLock {
	now := time.Now().Unix()
	return &models.RecordLock{
		TenantID:        "t1",
		OrganizationID:  orgID,
		ResourceKind:    "sales.quote",
		ResourceID:      "q1",
		Token:           "11111111-1111-4111-8111-111111111111",
		Strategy:        models.LockStrategyOptimistic,
		Status:          models.LockStatusActive,
		LockedByUserID:  userID,
		LockedAt:        now,
		LastHeartbeatAt: now,
		ExpiresAt:       now + 300,
	}
}

// TestLockInsertAndFindActive verifies basic persistence round-trip.
func TestLockInsertAndFindActive(t *testing.T) {
	store := NewLockStore(setupTestDB(t))

	lock := testLock("user-a", nil)
	if err := store.Insert(lock); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if lock.ID == "" {
		t.Fatal("Insert() did not assign an id")
	}

	found, err := store.FindActive("t1", nil, "sales.quote", "q1")
	if err != nil {
		t.Fatalf("FindActive() failed: %v", err)
	}
	if found == nil {
		t.Fatal("FindActive() returned nil for existing lock")
	}
	if found.ID != lock.ID || found.LockedByUserID != "user-a" || found.Token != lock.Token {
		t.Errorf("FindActive() returned wrong lock: %+v", found)
	}
}

// TestLockActiveScopeUniqueness verifies a second active lock on the same
// scope collides on the partial unique index and is classified ErrDuplicate.
func TestLockActiveScopeUniqueness(t *testing.T) {
	store := NewLockStore(setupTestDB(t))

	if err := store.Insert(testLock("user-a", nil)); err != nil {
		t.Fatalf("first Insert() failed: %v", err)
	}

	err := store.Insert(testLock("user-b", nil))
	if err == nil {
		t.Fatal("second Insert() on same scope should fail")
	}
	if !apperrors.Is(err, apperrors.ErrDuplicate) {
		t.Errorf("second Insert() error = %v, want code %s", err, apperrors.ErrDuplicate)
	}
}

// TestLockUniquenessReleasedScope verifies terminal rows do not block a new
// active lock on the same scope.
func TestLockUniquenessReleasedScope(t *testing.T) {
	store := NewLockStore(setupTestDB(t))

	first := testLock("user-a", nil)
	if err := store.Insert(first); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	first.Status = models.LockStatusReleased
	if err := store.Update(first); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	if err := store.Insert(testLock("user-b", nil)); err != nil {
		t.Errorf("Insert() after release failed: %v", err)
	}
}

// TestLockOrgScopeIsolation verifies distinct org scopes can hold
// simultaneous active locks, and the org-null scope is its own scope.
func TestLockOrgScopeIsolation(t *testing.T) {
	store := NewLockStore(setupTestDB(t))

	if err := store.Insert(testLock("user-a", strPtr("org-1"))); err != nil {
		t.Fatalf("org-1 Insert() failed: %v", err)
	}
	if err := store.Insert(testLock("user-b", strPtr("org-2"))); err != nil {
		t.Errorf("org-2 Insert() failed: %v", err)
	}
	if err := store.Insert(testLock("user-c", nil)); err != nil {
		t.Errorf("tenant-wide Insert() failed: %v", err)
	}
}

// TestLockFindActiveOrgFallback verifies an org-scoped lookup falls back to
// the tenant-wide row.
func TestLockFindActiveOrgFallback(t *testing.T) {
	store := NewLockStore(setupTestDB(t))

	if err := store.Insert(testLock("user-a", nil)); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	found, err := store.FindActive("t1", strPtr("org-1"), "sales.quote", "q1")
	if err != nil {
		t.Fatalf("FindActive() failed: %v", err)
	}
	if found == nil {
		t.Fatal("FindActive() should fall back to the tenant-wide lock")
	}
	if found.OrganizationID != nil {
		t.Errorf("fallback lock OrganizationID = %v, want nil", *found.OrganizationID)
	}
}

// TestLockFindActiveOwned verifies owner filtering.
func TestLockFindActiveOwned(t *testing.T) {
	store := NewLockStore(setupTestDB(t))

	if err := store.Insert(testLock("user-a", nil)); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	owned, err := store.FindActiveOwned("t1", nil, "sales.quote", "q1", "user-a")
	if err != nil {
		t.Fatalf("FindActiveOwned() failed: %v", err)
	}
	if owned == nil {
		t.Error("FindActiveOwned() returned nil for the owner")
	}

	other, err := store.FindActiveOwned("t1", nil, "sales.quote", "q1", "user-b")
	if err != nil {
		t.Fatalf("FindActiveOwned() failed: %v", err)
	}
	if other != nil {
		t.Error("FindActiveOwned() returned a lock for a non-owner")
	}
}

// TestLockUpdateMissing verifies updating a nonexistent lock reports not found.
func TestLockUpdateMissing(t *testing.T) {
	store := NewLockStore(setupTestDB(t))

	lock := testLock("user-a", nil)
	lock.ID = models.UUID("22222222-2222-4222-8222-222222222222")
	err := store.Update(lock)
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Update() error = %v, want code %s", err, apperrors.ErrNotFound)
	}
}

// TestLockListTouchedSince verifies the recently-touched window includes
// released locks and excludes stale ones.
func TestLockListTouchedSince(t *testing.T) {
	db := setupTestDB(t)
	store := NewLockStore(db)

	lock := testLock("user-a", nil)
	if err := store.Insert(lock); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	lock.Status = models.LockStatusReleased
	if err := store.Update(lock); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	recent, err := store.ListTouchedSince("t1", nil, "sales.quote", "q1", time.Now().Unix()-60)
	if err != nil {
		t.Fatalf("ListTouchedSince() failed: %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("ListTouchedSince() returned %d locks, want 1", len(recent))
	}

	future, err := store.ListTouchedSince("t1", nil, "sales.quote", "q1", time.Now().Unix()+3600)
	if err != nil {
		t.Fatalf("ListTouchedSince() failed: %v", err)
	}
	if len(future) != 0 {
		t.Errorf("ListTouchedSince() beyond the window returned %d locks, want 0", len(future))
	}
}

// TestLockDeleteNonActiveBefore verifies retention deletes only stale
// terminal rows.
func TestLockDeleteNonActiveBefore(t *testing.T) {
	db := setupTestDB(t)
	store := NewLockStore(db)

	active := testLock("user-a", nil)
	if err := store.Insert(active); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	released := testLock("user-b", nil)
	released.ResourceID = "q2"
	released.Status = models.LockStatusReleased
	if err := store.Insert(released); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	// Backdate the released row past the cutoff
	if _, err := db.Exec("UPDATE record_locks SET updated_at = ? WHERE id = ?",
		time.Now().Unix()-10*24*3600, released.ID); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	if err := store.DeleteNonActiveBefore("t1", time.Now().Unix()-3*24*3600); err != nil {
		t.Fatalf("DeleteNonActiveBefore() failed: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM record_locks").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("lock count after cleanup = %d, want 1 (active row preserved)", count)
	}
}
