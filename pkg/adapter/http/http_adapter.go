// Package http implements the HTTP/1.1 protocol adapter: the connection
// registry that owns the listener and the set of live connections, and the
// per-connection state machine driving request parsing, Digest
// authentication, content resolution and body streaming.
package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dhttpd/internal/logger"
	"github.com/marmos91/dhttpd/internal/protocol/http/digest"
	"github.com/marmos91/dhttpd/internal/ratelimiter"
	"github.com/marmos91/dhttpd/pkg/content"
	"github.com/marmos91/dhttpd/pkg/metrics"
	"github.com/marmos91/dhttpd/pkg/nonce"
)

// HTTPAdapter implements adapter.Adapter for HTTP/1.1.
//
// The adapter owns the TCP (or TLS) listener and the registry of live
// connections. Each accepted socket gets one HTTPConnection served on its
// own goroutine; the transport therefore delivers events for a given
// connection strictly serialized, and connection state needs no locking.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled (in-flight exchanges abort)
//  4. Wait for active connections up to ShutdownTimeout
//  5. Force-close whatever remains
type HTTPAdapter struct {
	config HTTPConfig

	listener net.Listener

	resolver    content.Resolver
	credentials content.CredentialProvider
	tlsIdentity content.TLSIdentityProvider

	validator *digest.Validator
	nonces    nonce.Registry
	ownNonces bool

	metrics metrics.HTTPMetrics

	// limiter bounds the connection-accept rate
	limiter *ratelimiter.RateLimiter

	// onConnectionClosed, when set, observes each connection's death
	// exactly once. Used by embedders and tests.
	onConnectionClosed func(remoteAddr string)

	activeConns   sync.WaitGroup
	shutdownOnce  sync.Once
	shutdown      chan struct{}
	connCount     atomic.Int32
	connSemaphore chan struct{}

	// activeConnections maps remote address to net.Conn for forced
	// closure after the shutdown timeout
	activeConnections sync.Map

	shutdownCtx    context.Context
	cancelRequests context.CancelFunc
}

// Option customizes an HTTPAdapter beyond its config.
type Option func(*HTTPAdapter)

// WithCredentials supplies the password policy for protected URIs.
func WithCredentials(p content.CredentialProvider) Option {
	return func(a *HTTPAdapter) { a.credentials = p }
}

// WithTLSIdentity supplies the certificate set used when config.Secure
// is true.
func WithTLSIdentity(p content.TLSIdentityProvider) Option {
	return func(a *HTTPAdapter) { a.tlsIdentity = p }
}

// WithNonceRegistry replaces the default in-memory nonce registry, e.g.
// with the persistent BadgerDB one. The caller keeps ownership and closes
// it.
func WithNonceRegistry(reg nonce.Registry) Option {
	return func(a *HTTPAdapter) {
		a.nonces = reg
		a.ownNonces = false
	}
}

// WithConnectionObserver registers a hook invoked exactly once per
// connection when it dies, regardless of the failure path.
func WithConnectionObserver(fn func(remoteAddr string)) Option {
	return func(a *HTTPAdapter) { a.onConnectionClosed = fn }
}

// New creates an HTTPAdapter serving content from resolver.
//
// Zero config values are replaced with defaults; an invalid configuration
// panics (programmer error). A nil resolver serves nothing, a nil metrics
// collector disables metrics.
func New(config HTTPConfig, resolver content.Resolver, httpMetrics metrics.HTTPMetrics, opts ...Option) *HTTPAdapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid HTTP config: %v", err))
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
	}

	if resolver == nil {
		resolver = content.NoContent{}
	}
	if httpMetrics == nil {
		httpMetrics = metrics.NoopHTTPMetrics{}
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	a := &HTTPAdapter{
		config:         config,
		resolver:       resolver,
		credentials:    content.NoProtection{},
		tlsIdentity:    content.NoTLS{},
		nonces:         nonce.NewMemoryRegistry(config.NonceTTL),
		ownNonces:      true,
		metrics:        httpMetrics,
		limiter:        ratelimiter.New(config.AcceptRate, config.AcceptBurst),
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}

	for _, opt := range opts {
		opt(a)
	}

	a.validator = digest.NewValidator(config.Realm, a.nonces)

	return a
}

// Serve starts the listener and blocks until the context is cancelled or
// an unrecoverable error occurs.
func (s *HTTPAdapter) Serve(ctx context.Context) error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	s.listener = listener

	logger.Info("HTTP server listening on port %d (secure=%v)", s.config.Port, s.config.Secure)
	logger.Debug("HTTP config: max_connections=%d write_timeout=%v idle_timeout=%v chunk_size=%d",
		s.config.MaxConnections, s.config.WriteTimeout, s.config.IdleTimeout, s.config.ChunkSize)

	go func() {
		<-ctx.Done()
		logger.Info("HTTP shutdown signal received: %v", ctx.Err())
		s.initiateShutdown()
	}()

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		// Bound the accept rate before taking the next socket
		if err := s.limiter.Wait(s.shutdownCtx); err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}
			return s.gracefulShutdown()
		}

		tcpConn, err := s.listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting HTTP connection: %v", err)
				continue
			}
		}

		s.activeConns.Add(1)
		s.connCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		s.activeConnections.Store(connAddr, tcpConn)

		s.metrics.RecordConnectionAccepted()
		currentConns := s.connCount.Load()
		s.metrics.SetActiveConnections(currentConns)

		logger.Debug("HTTP connection accepted from %s (active: %d)", connAddr, currentConns)

		conn := newHTTPConnection(s, tcpConn)
		go func(addr string, tcp net.Conn) {
			defer func() {
				s.activeConnections.Delete(addr)
				s.activeConns.Done()
				s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				s.metrics.RecordConnectionClosed()
				current := s.connCount.Load()
				s.metrics.SetActiveConnections(current)

				if s.onConnectionClosed != nil {
					s.onConnectionClosed(addr)
				}

				logger.Debug("HTTP connection closed from %s (active: %d)", addr, current)
			}()

			conn.Serve(s.shutdownCtx)
		}(connAddr, tcpConn)
	}
}

// listen opens the TCP listener, wrapping it in TLS when the adapter is
// marked secure.
func (s *HTTPAdapter) listen() (net.Listener, error) {
	addr := fmt.Sprintf(":%d", s.config.Port)

	if !s.config.Secure {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP listener on port %d: %w", s.config.Port, err)
		}
		return listener, nil
	}

	certs, ok := s.tlsIdentity.Certificates()
	if !ok {
		return nil, fmt.Errorf("secure server requested but no TLS identity configured")
	}

	listener, err := tls.Listen("tcp", addr, &tls.Config{Certificates: certs})
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTPS listener on port %d: %w", s.config.Port, err)
	}
	return listener, nil
}

// initiateShutdown begins graceful shutdown. Idempotent.
func (s *HTTPAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("HTTP shutdown initiated")

		close(s.shutdown)

		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing HTTP listener: %v", err)
			}
		}

		// Abort in-flight exchanges; connections check this context
		// between events
		s.cancelRequests()
	})
}

// gracefulShutdown waits for active connections to finish or force-closes
// them after ShutdownTimeout.
func (s *HTTPAdapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("HTTP graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	var shutdownErr error
	select {
	case <-done:
		logger.Info("HTTP graceful shutdown complete: all connections closed")

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("HTTP shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)
		s.forceCloseConnections()
		shutdownErr = fmt.Errorf("HTTP shutdown timeout: %d connections force-closed", remaining)
	}

	if s.ownNonces {
		if err := s.nonces.Close(); err != nil {
			logger.Debug("Error closing nonce registry: %v", err)
		}
	}

	return shutdownErr
}

// forceCloseConnections closes all tracked sockets so stuck connections
// fail out of their reads and writes immediately.
func (s *HTTPAdapter) forceCloseConnections() {
	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection to %s: %v", addr, err)
		} else {
			closedCount++
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed %d connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and
// concurrently with Serve. The context bounds the wait; nil falls back to
// the configured ShutdownTimeout.
func (s *HTTPAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("HTTP graceful shutdown complete: all connections closed")
		return nil
	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("HTTP shutdown context cancelled: %d connection(s) still active: %v",
			remaining, ctx.Err())
		return ctx.Err()
	}
}

// GetActiveConnections returns the current number of active connections.
func (s *HTTPAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Port returns the configured TCP port.
func (s *HTTPAdapter) Port() int {
	return s.config.Port
}

// Protocol returns "HTTP".
func (s *HTTPAdapter) Protocol() string {
	return "HTTP"
}
