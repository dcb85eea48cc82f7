// Package memory implements an in-memory content resolver. It backs small
// embedded deployments and tests where the response bodies are known up
// front.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/marmos91/dhttpd/pkg/content"
)

// Resolver serves bodies from an in-memory map keyed by URI.
type Resolver struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// New creates an empty resolver.
func New() *Resolver {
	return &Resolver{entries: make(map[string][]byte)}
}

// Put registers (or replaces) the body served for a URI.
func (r *Resolver) Put(uri string, body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[uri] = body
}

// Delete removes a URI.
func (r *Resolver) Delete(uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, uri)
}

// Data implements content.Resolver. Memory-resident bodies are always
// returned as a single buffer.
func (r *Resolver) Data(ctx context.Context, uri string) ([]byte, bool) {
	if ctx.Err() != nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	body, ok := r.entries[uri]
	return body, ok
}

// Size implements content.Resolver.
func (r *Resolver) Size(ctx context.Context, uri string) int64 {
	if ctx.Err() != nil {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.entries[uri]))
}

// Open implements content.Resolver, wrapping the stored buffer in a
// reader. Exists so the resolver satisfies the full interface; the engine
// prefers Data for memory-resident bodies.
func (r *Resolver) Open(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	body, ok := r.entries[uri]
	if !ok {
		return nil, 0, fmt.Errorf("uri %s: %w", uri, content.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(body)), int64(len(body)), nil
}
