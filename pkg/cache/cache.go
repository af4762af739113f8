// Package cache defines the contract shared by all quill cache backends
// and the canonical key codec.
package cache

import "github.com/quillcache/quill/pkg/models"

// Backend is the narrow contract every cache backend implements. Lookup
// and Update sit on the caller's hot path and never return errors: a
// failing backend degrades to a miss or a no-op instead of propagating.
type Backend interface {
	// Lookup returns the cached value for key and whether it was present.
	// A hit refreshes the entry's recency.
	Lookup(key Key) (string, bool)
	// Update stores value under key at the most-recently-used position,
	// evicting least-recently-used entries as needed to stay within
	// capacity.
	Update(key Key, value string)
	// Clear removes all entries.
	Clear() error
	// Stats reports current backend metrics.
	Stats() (models.CacheStats, error)
	// Ping performs a cheap liveness probe.
	Ping() error
	// Close releases backend resources.
	Close() error
}

// Disabled is the no-op backend installed when caching is off or a real
// backend failed to initialize. Every lookup is a miss and every mutation
// is a no-op.
type Disabled struct{}

func (Disabled) Lookup(Key) (string, bool) { return "", false }
func (Disabled) Update(Key, string)        {}
func (Disabled) Clear() error              { return nil }
func (Disabled) Ping() error               { return nil }
func (Disabled) Close() error              { return nil }

func (Disabled) Stats() (models.CacheStats, error) {
	return models.CacheStats{Type: models.BackendDisabled}, nil
}
