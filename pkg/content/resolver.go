// Package content defines the capability interfaces the dhttpd engine
// consumes from its embedder: content resolution, credential lookup, and
// TLS identity. Default implementations provide "not found", "no
// protection" and "no TLS" so a bare engine still runs.
package content

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
)

// ErrNotFound indicates the URI does not resolve to any content.
//
// Backends wrap it with context:
//
//	return nil, 0, fmt.Errorf("uri %s: %w", uri, content.ErrNotFound)
var ErrNotFound = errors.New("content not found")

// Resolver maps a request URI to response data.
//
// The engine queries the capabilities in order: Data for an in-memory
// buffer, then Size for the streaming length, then Open for the stream. A
// Size of zero (or less) means the URI resolves to nothing and takes the
// 404 path.
//
// Implementations must be safe for concurrent use; one resolver is shared
// by all connections. Path-traversal safety is the resolver's
// responsibility: a resolver serving a directory tree must never resolve a
// URI to a path outside its root.
type Resolver interface {
	// Data returns the in-memory body for the URI, if the resolver
	// holds one. Backends that stream from disk or network return
	// (nil, false).
	Data(ctx context.Context, uri string) ([]byte, bool)

	// Size returns the body length for the URI, or 0 when the URI does
	// not resolve.
	Size(ctx context.Context, uri string) int64

	// Open returns a streaming source for the URI together with its
	// size at open time. The caller closes the source.
	Open(ctx context.Context, uri string) (io.ReadCloser, int64, error)
}

// CredentialProvider supplies the password policy for protected URIs.
type CredentialProvider interface {
	// IsProtected reports whether the URI requires authentication.
	IsProtected(uri string) bool

	// PasswordFor returns the expected password for a username. A
	// missing user or empty password means "no protection" for that
	// user.
	PasswordFor(username string) (string, bool)
}

// TLSIdentityProvider supplies the server certificates when the embedder
// marks the server secure. The handshake itself is crypto/tls territory;
// the engine only wires the identity into the listener.
type TLSIdentityProvider interface {
	// Certificates returns the identity set, and false when no TLS
	// identity is configured.
	Certificates() ([]tls.Certificate, bool)
}

// NoContent is the default Resolver: every URI is absent.
type NoContent struct{}

func (NoContent) Data(context.Context, string) ([]byte, bool) { return nil, false }
func (NoContent) Size(context.Context, string) int64 { return 0 }
func (NoContent) Open(_ context.Context, uri string) (io.ReadCloser, int64, error) {
	return nil, 0, ErrNotFound
}

// NoProtection is the default CredentialProvider: nothing is protected.
type NoProtection struct{}

func (NoProtection) IsProtected(string) bool { return false }
func (NoProtection) PasswordFor(string) (string, bool) { return "", false }

// NoTLS is the default TLSIdentityProvider: no identity, plain TCP.
type NoTLS struct{}

func (NoTLS) Certificates() ([]tls.Certificate, bool) { return nil, false }
