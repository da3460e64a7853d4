// Package settings provides per-tenant record locking configuration.
package settings

import (
	"strings"

	"github.com/quartzcrm/backend/internal/models"
)

// Timeout and heartbeat bounds in seconds.
const (
	MinTimeoutSeconds = 30
	MaxTimeoutSeconds = 3600
	DefaultTimeout    = 300

	MinHeartbeatSeconds = 5
	MaxHeartbeatSeconds = 300
	DefaultHeartbeat    = 30
)

// RecordLockSettings is the per-tenant record locking configuration.
type RecordLockSettings struct {
	Enabled          bool                `json:"enabled"`
	Strategy         models.LockStrategy `json:"strategy"`
	TimeoutSeconds   int                 `json:"timeout_seconds"`
	HeartbeatSeconds int                 `json:"heartbeat_seconds"`
	// EnabledResources limits locking to the listed resource kinds.
	// Entries may be exact kinds, "*", or "prefix.*" suffix wildcards.
	// An empty list enables all resources.
	EnabledResources      []string `json:"enabled_resources"`
	AllowForceUnlock      bool     `json:"allow_force_unlock"`
	AllowIncomingOverride bool     `json:"allow_incoming_override"`
	NotifyOnConflict      bool     `json:"notify_on_conflict"`
}

// Default returns the default record locking settings.
func Default() RecordLockSettings {
	return RecordLockSettings{
		Enabled:               true,
		Strategy:              models.LockStrategyOptimistic,
		TimeoutSeconds:        DefaultTimeout,
		HeartbeatSeconds:      DefaultHeartbeat,
		EnabledResources:      nil,
		AllowForceUnlock:      true,
		AllowIncomingOverride: true,
		NotifyOnConflict:      true,
	}
}

// Normalized returns a copy with out-of-range values clamped and unknown
// strategies reset to optimistic.
func (s RecordLockSettings) Normalized() RecordLockSettings {
	if s.Strategy != models.LockStrategyPessimistic {
		s.Strategy = models.LockStrategyOptimistic
	}
	s.TimeoutSeconds = clamp(s.TimeoutSeconds, MinTimeoutSeconds, MaxTimeoutSeconds, DefaultTimeout)
	s.HeartbeatSeconds = clamp(s.HeartbeatSeconds, MinHeartbeatSeconds, MaxHeartbeatSeconds, DefaultHeartbeat)
	return s
}

func clamp(v, min, max, def int) int {
	if v == 0 {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// EnabledForResource reports whether record locking applies to the given
// resource kind under these settings.
func (s RecordLockSettings) EnabledForResource(kind string) bool {
	if !s.Enabled {
		return false
	}
	if len(s.EnabledResources) == 0 {
		return true
	}
	for _, entry := range s.EnabledResources {
		if entry == "*" || entry == kind {
			return true
		}
		if prefix, ok := strings.CutSuffix(entry, ".*"); ok {
			if strings.HasPrefix(kind, prefix+".") {
				return true
			}
		}
	}
	return false
}
