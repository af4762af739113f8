// Package manager owns the lifecycle of the configured cache backend and
// exposes the administrative surface: clear, stats, and health.
package manager

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/quillcache/quill/pkg/cache"
	"github.com/quillcache/quill/pkg/cache/memory"
	"github.com/quillcache/quill/pkg/cache/sqlite"
	"github.com/quillcache/quill/pkg/config"
	"github.com/quillcache/quill/pkg/models"
)

// State is the manager lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateActive        State = "active"
	StateFailed        State = "failed"
)

// Manager selects a cache backend from configuration, owns its lifecycle,
// and routes lookups and updates to it. A failed initialization installs
// the disabled backend so callers keep a working (always-miss) cache;
// Reinit retries after the failure is addressed.
//
// Pass the Manager explicitly through call sites; there is no package
// global.
type Manager struct {
	cfg config.CacheConfig
	log zerolog.Logger

	sf singleflight.Group

	mu           sync.Mutex
	backend      cache.Backend
	active       models.BackendType
	state        State
	initAttempts int
	lastError    string
}

// New creates a Manager for the given cache configuration. The backend is
// built lazily on first access, or eagerly via Init.
func New(cfg config.CacheConfig, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		log:     logger,
		backend: cache.Disabled{},
		active:  models.BackendDisabled,
		state:   StateUninitialized,
	}
}

// Init builds the configured backend. Concurrent callers are collapsed to
// a single attempt; losers observe the winner's result. A failure records
// the error, counts the attempt, and installs the disabled backend. Init
// on an already-active manager is a no-op; after a failure it retries
// from scratch.
func (m *Manager) Init() error {
	_, err, _ := m.sf.Do("init", func() (any, error) {
		return nil, m.initialize()
	})
	return err
}

// Reinit is an explicit retry after a failed initialization.
func (m *Manager) Reinit() error { return m.Init() }

func (m *Manager) initialize() error {
	m.mu.Lock()
	if m.state == StateActive {
		// Already initialized; teardown is the only exit from Active.
		m.mu.Unlock()
		return nil
	}
	m.state = StateInitializing
	m.initAttempts++
	old := m.backend
	cfg := m.cfg
	m.mu.Unlock()

	backend, active, err := buildBackend(cfg, m.log)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		_ = old.Close()
		m.backend = cache.Disabled{}
		m.active = models.BackendDisabled
		m.state = StateFailed
		m.lastError = err.Error()
		m.log.Error().Err(err).
			Int("attempts", m.initAttempts).
			Msg("cache initialization failed, caching disabled")
		return err
	}

	_ = old.Close()
	m.backend = backend
	m.active = active
	m.state = StateActive
	m.lastError = ""
	m.log.Info().
		Str("backend", string(active)).
		Int("max_size", cfg.MaxSize).
		Dur("ttl", cfg.TTL).
		Msg("cache initialized")
	return nil
}

func buildBackend(cfg config.CacheConfig, logger zerolog.Logger) (cache.Backend, models.BackendType, error) {
	if !cfg.Enabled {
		return cache.Disabled{}, models.BackendDisabled, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, models.BackendDisabled, fmt.Errorf("cache config: %w", err)
	}

	switch cfg.Backend {
	case models.BackendMemory:
		return memory.New(cfg.MaxSize, cfg.TTL), models.BackendMemory, nil
	case models.BackendSQLite:
		c, err := sqlite.New(cfg.Path, cfg.MaxSize, logger)
		if err != nil {
			return nil, models.BackendDisabled, err
		}
		return c, models.BackendSQLite, nil
	default:
		// Unreachable: Validate rejects unknown backends.
		return nil, models.BackendDisabled, fmt.Errorf("cache config: %w: got %q", config.ErrUnknownBackend, cfg.Backend)
	}
}

// ensureInit lazily builds the backend on first access. A Failed manager
// stays failed until an explicit Reinit.
func (m *Manager) ensureInit() {
	m.mu.Lock()
	uninitialized := m.state == StateUninitialized
	m.mu.Unlock()
	if uninitialized {
		_ = m.Init()
	}
}

// Lookup routes to the active backend.
func (m *Manager) Lookup(key cache.Key) (string, bool) {
	m.ensureInit()
	return m.currentBackend().Lookup(key)
}

// Update routes to the active backend.
func (m *Manager) Update(key cache.Key, value string) {
	m.ensureInit()
	m.currentBackend().Update(key, value)
}

// ClearCache empties the active backend. For the sqlite backend the
// database file itself is removed and the backend reinitialized. The
// result is always structured; ClearCache never returns an error.
func (m *Manager) ClearCache() models.ClearResult {
	m.ensureInit()

	m.mu.Lock()
	backend := m.backend
	active := m.active
	m.mu.Unlock()

	res := models.ClearResult{Backend: active}

	switch b := backend.(type) {
	case *sqlite.Cache:
		return m.clearSQLite(b)
	case cache.Disabled:
		res.Success = true
		res.Message = "cache disabled, nothing to clear"
		return res
	default:
		if err := b.Clear(); err != nil {
			res.Message = fmt.Sprintf("clear cache: %v", err)
			m.log.Error().Err(err).Str("backend", string(active)).Msg("clear cache failed")
			return res
		}
		res.Success = true
		res.Message = fmt.Sprintf("%s cache cleared", active)
		m.log.Info().Str("backend", string(active)).Msg("cache cleared")
		return res
	}
}

// clearSQLite removes the database file entirely rather than truncating
// rows, then rebuilds the backend so subsequent operations keep working.
func (m *Manager) clearSQLite(b *sqlite.Cache) models.ClearResult {
	res := models.ClearResult{Backend: models.BackendSQLite}

	// Detach the backend before touching the file so concurrent callers
	// degrade to misses instead of racing a closed handle.
	m.mu.Lock()
	m.backend = cache.Disabled{}
	m.active = models.BackendDisabled
	m.state = StateUninitialized
	m.mu.Unlock()

	if err := b.Close(); err != nil {
		res.Message = fmt.Sprintf("close cache db: %v", err)
		m.log.Error().Err(err).Msg("clear cache failed")
		return res
	}
	if err := os.Remove(b.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		res.Message = fmt.Sprintf("remove cache file: %v", err)
		m.log.Error().Err(err).Msg("clear cache failed")
		return res
	}

	if err := m.Init(); err != nil {
		res.Message = fmt.Sprintf("cache file removed, reinitialization failed: %v", err)
		return res
	}

	res.Backend = models.BackendSQLite
	res.Success = true
	res.Message = "sqlite cache file removed"
	m.log.Info().Str("path", b.Path()).Msg("cache cleared")
	return res
}

// Stats merges manager lifecycle fields with the active backend's
// metrics. A backend stats failure degrades Status instead of erroring.
func (m *Manager) Stats() models.ManagerStats {
	m.ensureInit()

	m.mu.Lock()
	backend := m.backend
	stats := models.ManagerStats{
		Status:       string(m.state),
		Backend:      m.active,
		Initialized:  m.state == StateActive,
		InitAttempts: m.initAttempts,
		LastError:    m.lastError,
	}
	m.mu.Unlock()

	cs, err := backend.Stats()
	if err != nil {
		stats.Status = fmt.Sprintf("error: %v", err)
	}
	stats.Cache = cs
	return stats
}

// HealthCheck probes the active backend: a round-trip query for sqlite, a
// sentinel write and read for memory. A disabled-by-configuration cache is
// healthy; a cache disabled by an initialization failure is not.
func (m *Manager) HealthCheck() models.HealthReport {
	m.ensureInit()

	m.mu.Lock()
	backend := m.backend
	active := m.active
	state := m.state
	lastError := m.lastError
	m.mu.Unlock()

	report := models.HealthReport{Backend: active}

	if state == StateFailed {
		report.Message = fmt.Sprintf("cache initialization failed: %s", lastError)
		return report
	}
	if active == models.BackendDisabled {
		report.Healthy = true
		report.Message = "cache disabled"
		return report
	}

	if err := backend.Ping(); err != nil {
		report.Message = err.Error()
		m.log.Error().Err(err).Str("backend", string(active)).Msg("cache health probe failed")
		return report
	}

	report.Healthy = true
	report.Message = fmt.Sprintf("%s cache healthy", active)
	return report
}

// Close tears down the active backend and returns the manager to the
// uninitialized state.
func (m *Manager) Close() error {
	m.mu.Lock()
	backend := m.backend
	m.backend = cache.Disabled{}
	m.active = models.BackendDisabled
	m.state = StateUninitialized
	m.mu.Unlock()

	return backend.Close()
}

func (m *Manager) currentBackend() cache.Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend
}
