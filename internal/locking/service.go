package locking

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	apperrors "github.com/quartzcrm/backend/internal/errors"
	"github.com/quartzcrm/backend/internal/logging"
	"github.com/quartzcrm/backend/internal/models"
	"github.com/quartzcrm/backend/internal/settings"
	"github.com/quartzcrm/backend/internal/uuid"
)

// acquireMaxAttempts bounds the re-read loop after a unique-constraint
// collision on insert. Each retry means another writer won the race; after
// the retries the loop lands in the held-by-other or held-by-me branch.
const acquireMaxAttempts = 3

// Service orchestrates lock acquisition, mutation validation, conflict
// resolution, notification fan-out, and retention cleanup. It holds no
// in-process mutex for correctness; concurrent acquires are settled by the
// storage layer's active-scope unique constraint.
type Service struct {
	locks     LockStore
	conflicts ConflictStore
	history   ChangeHistory
	settings  settings.Source
	caps      CapabilityChecker
	emitter   Emitter
	log       *logging.Logger

	// Soft process-local state, lost on restart by design.
	contention  *gocache.Cache
	cleanupMark *gocache.Cache
	cleanupBusy sync.Map

	now         func() int64
	throttleOff bool
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the service clock. Test use.
func WithClock(now func() int64) Option {
	return func(s *Service) { s.now = now }
}

// WithoutEventThrottle disables contention-event throttling. Test use.
func WithoutEventThrottle() Option {
	return func(s *Service) { s.throttleOff = true }
}

// NewService creates a record lock service.
func NewService(locks LockStore, conflicts ConflictStore, history ChangeHistory, cfg settings.Source, caps CapabilityChecker, emitter Emitter, opts ...Option) *Service {
	s := &Service{
		locks:       locks,
		conflicts:   conflicts,
		history:     history,
		settings:    cfg,
		caps:        caps,
		emitter:     emitter,
		log:         logging.Get(),
		contention:  gocache.New(contentionThrottle, 2*contentionThrottle),
		cleanupMark: gocache.New(cleanupInterval, 2*cleanupInterval),
		now:         func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AcquireResult reports the outcome of an acquire attempt. Acquired is true
// only when a new claim was created; "already held by you" and "held by
// someone else under optimistic strategy" both succeed with Acquired false.
type AcquireResult struct {
	ResourceEnabled bool             `json:"resource_enabled"`
	Acquired        bool             `json:"acquired"`
	Lock            *models.LockView `json:"lock,omitempty"`
}

// Acquire claims a resource for editing. Pessimistic contention is the only
// failure mode; it surfaces as a record_locked error carrying a read-only
// view of the winning lock.
func (s *Service) Acquire(scope Scope, res Resource, lockedByIP string) (*AcquireResult, error) {
	s.scheduleCleanup(scope.TenantID)

	cfg, err := s.settings.GetSettings(scope.TenantID)
	if err != nil {
		return nil, err
	}
	if !cfg.EnabledForResource(res.Kind) {
		return &AcquireResult{ResourceEnabled: false, Acquired: false}, nil
	}

	latest, err := s.history.FindLatest(scope.TenantID, scope.OrganizationID, res.Kind, res.ID)
	if err != nil {
		return nil, err
	}
	baseLogID := ""
	if latest != nil {
		baseLogID = string(latest.ID)
	}

	for attempt := 0; attempt < acquireMaxAttempts; attempt++ {
		cur, err := s.findActiveLock(scope, res)
		if err != nil {
			return nil, err
		}

		if cur != nil && cur.LockedByUserID != scope.UserID {
			s.emitContended(scope, res, cur)
			if cfg.Strategy == models.LockStrategyPessimistic {
				view := cur.View()
				return nil, apperrors.New(apperrors.ErrRecordLocked,
					"record is locked by another user").WithDetails(map[string]interface{}{"lock": view})
			}
			view := cur.View()
			return &AcquireResult{ResourceEnabled: true, Acquired: false, Lock: &view}, nil
		}

		if cur != nil {
			now := s.now()
			cur.Strategy = cfg.Strategy
			cur.LockedByIP = lockedByIP
			cur.BaseActionLogID = baseLogID
			cur.LastHeartbeatAt = now
			cur.ExpiresAt = now + int64(cfg.TimeoutSeconds)
			if err := s.locks.Update(cur); err != nil {
				return nil, err
			}
			view := cur.OwnerView()
			return &AcquireResult{ResourceEnabled: true, Acquired: false, Lock: &view}, nil
		}

		now := s.now()
		lock := &models.RecordLock{
			TenantID:        scope.TenantID,
			OrganizationID:  scope.OrganizationID,
			ResourceKind:    res.Kind,
			ResourceID:      res.ID,
			Token:           uuid.NewToken(),
			Strategy:        cfg.Strategy,
			Status:          models.LockStatusActive,
			LockedByUserID:  scope.UserID,
			LockedByIP:      lockedByIP,
			BaseActionLogID: baseLogID,
			LockedAt:        now,
			LastHeartbeatAt: now,
			ExpiresAt:       now + int64(cfg.TimeoutSeconds),
		}
		err = s.locks.Insert(lock)
		if err == nil {
			s.emit(EventLockAcquired, lockEventPayload(scope, res, lock))
			view := lock.OwnerView()
			return &AcquireResult{ResourceEnabled: true, Acquired: true, Lock: &view}, nil
		}
		if !apperrors.Is(err, apperrors.ErrDuplicate) {
			return nil, err
		}
		// A concurrent acquire won the unique index; re-read and react to
		// the winner's lock instead of failing the caller.
	}

	return nil, apperrors.New(apperrors.ErrInternal, "could not settle lock ownership after repeated races")
}

// HeartbeatResult reports the renewed expiry of a lock, or Active false
// when no matching active lock remains.
type HeartbeatResult struct {
	Active    bool  `json:"active"`
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

// Heartbeat renews the caller's claim. A missing or already-gone lock is a
// no-op success; the client learns it no longer holds anything.
func (s *Service) Heartbeat(scope Scope, res Resource, token string) (*HeartbeatResult, error) {
	cfg, err := s.settings.GetSettings(scope.TenantID)
	if err != nil {
		return nil, err
	}
	if !cfg.EnabledForResource(res.Kind) {
		return &HeartbeatResult{Active: false}, nil
	}

	lock, err := s.locks.FindActiveOwned(scope.TenantID, scope.OrganizationID, res.Kind, res.ID, scope.UserID)
	if err != nil {
		return nil, err
	}
	if lock == nil || lock.Token != token {
		return &HeartbeatResult{Active: false}, nil
	}

	now := s.now()
	if lock.IsExpired(now) {
		if err := s.markExpired(lock); err != nil {
			return nil, err
		}
		return &HeartbeatResult{Active: false}, nil
	}

	lock.LastHeartbeatAt = now
	lock.ExpiresAt = now + int64(cfg.TimeoutSeconds)
	if err := s.locks.Update(lock); err != nil {
		return nil, err
	}
	return &HeartbeatResult{Active: true, ExpiresAt: lock.ExpiresAt}, nil
}

// ReleaseOptions carries the optional inputs of a release call.
type ReleaseOptions struct {
	Token      string
	Reason     string
	ConflictID string
	Resolution models.ConflictResolution
}

// ReleaseResult reports which of the two tandem effects happened.
type ReleaseResult struct {
	Released         bool `json:"released"`
	ConflictResolved bool `json:"conflict_resolved"`
}

// Release gives up the caller's claim on a resource. When a pending
// conflict id is supplied with an accept_incoming resolution and the
// conflict is owned by the caller, it is resolved in tandem.
func (s *Service) Release(scope Scope, res Resource, opts ReleaseOptions) (*ReleaseResult, error) {
	cfg, err := s.settings.GetSettings(scope.TenantID)
	if err != nil {
		return nil, err
	}
	if !cfg.EnabledForResource(res.Kind) {
		return &ReleaseResult{}, nil
	}

	result := &ReleaseResult{}

	if opts.ConflictID != "" && opts.Resolution == models.ResolutionAcceptIncoming {
		c, err := s.conflicts.GetByID(scope.TenantID, opts.ConflictID)
		if err != nil {
			return nil, err
		}
		if c != nil && c.IsPending() && c.ConflictActorUserID == scope.UserID {
			if err := s.resolveConflict(c, models.ResolutionAcceptIncoming, scope.UserID); err != nil {
				return nil, err
			}
			result.ConflictResolved = true
		}
	}

	lock, err := s.findActiveLock(scope, res)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return result, nil
	}
	if opts.Token != "" {
		if lock.Token != opts.Token {
			return result, nil
		}
	} else if lock.LockedByUserID != scope.UserID {
		return result, nil
	}

	lock.Status = models.LockStatusReleased
	lock.ReleaseReason = opts.Reason
	lock.ReleasedByUserID = scope.UserID
	lock.ReleasedAt = s.now()
	if err := s.locks.Update(lock); err != nil {
		return nil, err
	}
	s.emit(EventLockReleased, lockEventPayload(scope, res, lock))
	result.Released = true
	return result, nil
}

// ForceRelease releases the active lock regardless of owner. Gated only on
// the tenant's AllowForceUnlock setting; who may invoke it is authorized
// upstream.
func (s *Service) ForceRelease(scope Scope, res Resource, reason string) (bool, error) {
	cfg, err := s.settings.GetSettings(scope.TenantID)
	if err != nil {
		return false, err
	}
	if !cfg.AllowForceUnlock {
		return false, apperrors.New(apperrors.ErrPermission, "force unlock is disabled for this tenant")
	}
	if !cfg.EnabledForResource(res.Kind) {
		return false, nil
	}

	lock, err := s.findActiveLock(scope, res)
	if err != nil {
		return false, err
	}
	if lock == nil {
		return false, nil
	}

	lock.Status = models.LockStatusForceReleased
	lock.ReleaseReason = reason
	lock.ReleasedByUserID = scope.UserID
	lock.ReleasedAt = s.now()
	if err := s.locks.Update(lock); err != nil {
		return false, err
	}
	s.emit(EventLockForceReleased, lockEventPayload(scope, res, lock))
	return true, nil
}

// findActiveLock returns the current active lock for the scope, lazily
// transitioning (and persisting) an overdue lock to expired. Expiry is
// observed on read paths; there is no background sweep.
func (s *Service) findActiveLock(scope Scope, res Resource) (*models.RecordLock, error) {
	lock, err := s.locks.FindActive(scope.TenantID, scope.OrganizationID, res.Kind, res.ID)
	if err != nil || lock == nil {
		return nil, err
	}
	if lock.IsExpired(s.now()) {
		if err := s.markExpired(lock); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return lock, nil
}

func (s *Service) markExpired(lock *models.RecordLock) error {
	lock.Status = models.LockStatusExpired
	return s.locks.Update(lock)
}

func (s *Service) emit(eventID string, payload interface{}) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(eventID, payload)
}

func lockEventPayload(scope Scope, res Resource, lock *models.RecordLock) map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":       scope.TenantID,
		"organization_id": scope.OrganizationID,
		"resource_kind":   res.Kind,
		"resource_id":     res.ID,
		"lock":            lock.View(),
	}
}
