// Package fs implements a filesystem-backed content resolver serving a
// document root.
//
// URIs resolve relative to the root; a trailing "/" maps to the index
// resource. Any URI whose cleaned path escapes the root resolves to
// nothing, so traversal attempts ("/../../etc/passwd") take the 404 path
// instead of leaking files.
package fs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/dhttpd/pkg/content"
)

// DefaultIndex is the resource served for URIs ending in "/".
const DefaultIndex = "index.html"

// Resolver serves files under a document root. It never loads bodies into
// memory: Data always answers false and the engine streams from Open.
type Resolver struct {
	root  string
	index string
}

// Config holds filesystem resolver settings.
type Config struct {
	// Root is the document root directory. Required.
	Root string `mapstructure:"root"`

	// Index is the resource name substituted for a trailing "/".
	// Defaults to DefaultIndex.
	Index string `mapstructure:"index"`
}

// New creates a resolver for the given document root. The root must exist
// and be a directory.
func New(cfg Config) (*Resolver, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("filesystem resolver: root is required")
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve document root: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat document root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document root %s is not a directory", root)
	}

	index := cfg.Index
	if index == "" {
		index = DefaultIndex
	}

	return &Resolver{root: root, index: index}, nil
}

// Data implements content.Resolver. Filesystem content is streamed, never
// buffered, so this always reports no in-memory data.
func (r *Resolver) Data(context.Context, string) ([]byte, bool) {
	return nil, false
}

// Size implements content.Resolver. Returns 0 for anything that is not a
// regular file inside the root.
func (r *Resolver) Size(ctx context.Context, uri string) int64 {
	if ctx.Err() != nil {
		return 0
	}

	path, ok := r.resolve(uri)
	if !ok {
		return 0
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0
	}
	return info.Size()
}

// Open implements content.Resolver.
func (r *Resolver) Open(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	path, ok := r.resolve(uri)
	if !ok {
		return nil, 0, fmt.Errorf("uri %s: %w", uri, content.ErrNotFound)
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("uri %s: %w", uri, content.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil || !info.Mode().IsRegular() {
		_ = file.Close()
		return nil, 0, fmt.Errorf("uri %s: %w", uri, content.ErrNotFound)
	}

	return file, info.Size(), nil
}

// resolve maps a URI to an absolute path under the root. The second return
// value is false when the URI escapes the root.
func (r *Resolver) resolve(uri string) (string, bool) {
	// Strip any query component; the resolver serves by path only
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		uri = uri[:i]
	}

	if uri == "" || strings.HasSuffix(uri, "/") {
		uri += r.index
	}

	path := filepath.Join(r.root, filepath.FromSlash(uri))

	// filepath.Join cleans the path; anything still outside the root
	// was a traversal attempt
	if path != r.root && !strings.HasPrefix(path, r.root+string(filepath.Separator)) {
		return "", false
	}
	return path, true
}
