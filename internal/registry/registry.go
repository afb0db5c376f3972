// Package registry provides a time-bounded, in-memory key/value registry used to
// hand negotiation state between independent HTTP round-trips. Entries expire
// after a fixed TTL; an expired entry behaves exactly as if it never existed.
package registry

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Registry is a mutex-guarded map with per-entry expiration. Insert and remove
// are mutually exclusive so a timeout sweep can never race a resume into a
// lost update. A removed entry is never resurrected.
type Registry[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	ttl     time.Duration

	// now is swappable for expiry tests.
	now func() time.Time
}

// New creates a registry whose entries expire after the given default TTL.
func New[K comparable, V any](ttl time.Duration) *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put inserts or replaces the value for key with the default TTL.
func (r *Registry[K, V]) Put(key K, value V) {
	r.PutTTL(key, value, r.ttl)
}

// PutTTL inserts or replaces the value for key with an explicit TTL.
func (r *Registry[K, V]) PutTTL(key K, value V, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = entry[V]{value: value, expiresAt: r.now().Add(ttl)}
}

// Get returns the live value for key. An expired entry is removed and reported
// as absent.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !r.now().Before(e.expiresAt) {
		delete(r.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Take returns the live value for key and removes it in the same critical
// section, so a token can be consumed at most once.
func (r *Registry[K, V]) Take(key K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	delete(r.entries, key)
	if !r.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Remove deletes key and reports whether a live entry was present.
func (r *Registry[K, V]) Remove(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return false
	}
	delete(r.entries, key)
	return r.now().Before(e.expiresAt)
}

// Len returns the number of live entries.
func (r *Registry[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	count := 0
	for _, e := range r.entries {
		if now.Before(e.expiresAt) {
			count++
		}
	}
	return count
}

// Sweep removes expired entries and returns how many were dropped.
func (r *Registry[K, V]) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	dropped := 0
	for key, e := range r.entries {
		if !now.Before(e.expiresAt) {
			delete(r.entries, key)
			dropped++
		}
	}
	return dropped
}

// StartSweeper runs a periodic Sweep until ctx is cancelled.
func (r *Registry[K, V]) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}
