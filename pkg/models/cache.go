package models

import "time"

// BackendType identifies a cache backend implementation.
type BackendType string

const (
	// BackendDisabled is the no-op backend: every lookup is a miss.
	BackendDisabled BackendType = "disabled"
	// BackendMemory is the in-process LRU backend with optional TTL.
	BackendMemory BackendType = "memory"
	// BackendSQLite is the durable SQLite-backed LRU backend.
	BackendSQLite BackendType = "sqlite"
)

// CacheStats reports backend-level cache metrics. It is recomputed on
// demand and never persisted.
type CacheStats struct {
	Type        BackendType   `json:"type"`
	CurrentSize int64         `json:"current_size"`
	MaxSize     int64         `json:"max_size"`
	Hits        int64         `json:"hits"`
	Misses      int64         `json:"misses"`
	HitRate     float64       `json:"hit_rate"`
	Evictions   int64         `json:"evictions"`
	Expired     int64         `json:"expired"`
	Oldest      time.Time     `json:"oldest_entry,omitzero"`
	Newest      time.Time     `json:"newest_entry,omitzero"`
	TTL         time.Duration `json:"ttl,omitempty"`
}

// ManagerStats merges manager lifecycle fields with the active backend's
// CacheStats. Status degrades to an "error: ..." string when the backend
// cannot report.
type ManagerStats struct {
	Status       string      `json:"status"`
	Backend      BackendType `json:"backend"`
	Initialized  bool        `json:"initialized"`
	InitAttempts int         `json:"init_attempts"`
	LastError    string      `json:"last_error,omitempty"`
	Cache        CacheStats  `json:"cache"`
}

// ClearResult describes the outcome of an administrative cache clear.
type ClearResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Backend BackendType `json:"backend"`
}

// HealthReport describes the outcome of a cache health probe.
type HealthReport struct {
	Healthy bool        `json:"healthy"`
	Message string      `json:"message"`
	Backend BackendType `json:"backend"`
}
