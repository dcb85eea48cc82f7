// Package adapter defines the lifecycle contract for protocol adapters
// hosted by an embedding application.
package adapter

import "context"

// Adapter is a protocol-specific server that can be managed by an
// embedding application alongside other adapters.
//
// Lifecycle:
//  1. Creation: the adapter is built with protocol-specific configuration
//     and the capability providers it serves from.
//  2. Startup: Serve() starts the listener and blocks until shutdown.
//  3. Shutdown: Stop() initiates graceful shutdown with a timeout.
//
// Implementations must be safe for concurrent use: Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Serve starts the server and blocks until the context is cancelled
	// or an unrecoverable error occurs. On cancellation it must stop
	// accepting connections, wait for active ones (bounded by the
	// configured shutdown timeout), and clean up.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. Idempotent, safe to call
	// concurrently with Serve. The context bounds how long Stop waits
	// for active connections.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging
	// and metrics, e.g. "HTTP".
	Protocol() string

	// Port returns the TCP port the adapter listens on, or 0 before
	// Serve is called.
	Port() int
}
