// Package nonce manages the lifecycle of Digest authentication nonces.
//
// A nonce is an opaque unique token with a fixed time-to-live. The registry
// is shared across all connections of a server instance: a nonce issued on
// one connection must stay valid for any other connection until it expires,
// so clients that reconnect with a previously issued nonce still
// authenticate.
package nonce

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the nonce time-to-live applied when none is configured.
const DefaultTTL = 300 * time.Second

// Registry issues and expires authentication nonces.
//
// Implementations must be safe for concurrent use: connections may run on
// separate goroutines and share one registry.
type Registry interface {
	// Issue generates a new unique nonce, registers it with the
	// configured TTL and returns its token.
	Issue(ctx context.Context) (string, error)

	// Contains reports whether the token is currently registered and
	// unexpired.
	Contains(ctx context.Context, token string) bool

	// Remove invalidates a token before its TTL elapses.
	Remove(ctx context.Context, token string)

	// Close releases resources held by the registry.
	Close() error
}

// MemoryRegistry is the default in-process Registry.
//
// Expiry is lazy: each lookup checks the entry's deadline, and Issue
// opportunistically drops expired entries. This keeps the registry free of
// background timers while still honoring the TTL contract.
type MemoryRegistry struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time

	// now is swappable for tests
	now func() time.Time
}

// NewMemoryRegistry creates a registry with the given TTL.
// A non-positive TTL falls back to DefaultTTL.
func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryRegistry{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Issue generates a 128-bit random token and registers it.
func (r *MemoryRegistry) Issue(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for t, deadline := range r.entries {
		if now.After(deadline) {
			delete(r.entries, t)
		}
	}
	r.entries[token] = now.Add(r.ttl)

	return token, nil
}

// Contains reports whether token is registered and unexpired. An expired
// entry is removed on lookup.
func (r *MemoryRegistry) Contains(ctx context.Context, token string) bool {
	if ctx.Err() != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	deadline, ok := r.entries[token]
	if !ok {
		return false
	}
	if r.now().After(deadline) {
		delete(r.entries, token)
		return false
	}
	return true
}

// Remove invalidates the token immediately.
func (r *MemoryRegistry) Remove(_ context.Context, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, token)
}

// Close implements Registry. The memory registry holds no resources.
func (r *MemoryRegistry) Close() error {
	return nil
}

// Len returns the number of live entries, counting out expired ones.
// Used for monitoring and tests.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	count := 0
	for _, deadline := range r.entries {
		if !now.After(deadline) {
			count++
		}
	}
	return count
}
