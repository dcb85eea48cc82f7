package http

import (
	"fmt"
	"time"

	"github.com/marmos91/dhttpd/pkg/nonce"
)

// DefaultChunkSize is the body streaming chunk size when none is
// configured.
const DefaultChunkSize = 512 * 1024

// HTTPConfig holds configuration parameters for the HTTP adapter.
//
// Zero values are replaced with defaults by applyDefaults:
//   - Port: 8080
//   - Realm: "dhttpd"
//   - WriteTimeout: 30s (header and error writes; body writes are
//     never bounded, large files may take arbitrarily long)
//   - ShutdownTimeout: 30s
//   - ChunkSize: 512 KiB
//   - NonceTTL: 300s
type HTTPConfig struct {
	// Enabled controls whether the HTTP adapter is active.
	Enabled bool `mapstructure:"enabled"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// Realm is the Digest authentication protection realm presented in
	// WWW-Authenticate challenges.
	Realm string `mapstructure:"realm"`

	// Secure requires TLS for all connections. Serve fails at startup
	// when no TLS identity is available.
	Secure bool `mapstructure:"secure"`

	// MaxConnections limits concurrent client connections.
	// 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// WriteTimeout bounds header and error-response writes. A write
	// that exceeds it tears the connection down. 0 disables the bound.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// IdleTimeout bounds how long a connection may sit between
	// requests. 0 means connections wait indefinitely for the next
	// header line.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout bounds the wait for active connections during
	// graceful shutdown. Must be > 0.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// ChunkSize is the body streaming chunk size in bytes.
	ChunkSize int `mapstructure:"chunk_size" validate:"min=0"`

	// NonceTTL is the authentication nonce time-to-live.
	NonceTTL time.Duration `mapstructure:"nonce_ttl" validate:"min=0"`

	// AcceptRate limits accepted connections per second.
	// 0 means unlimited. AcceptBurst is the burst capacity.
	AcceptRate  uint `mapstructure:"accept_rate"`
	AcceptBurst uint `mapstructure:"accept_burst"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *HTTPConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.Realm == "" {
		c.Realm = "dhttpd"
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.NonceTTL == 0 {
		c.NonceTTL = nonce.DefaultTTL
	}
	if c.AcceptRate > 0 && c.AcceptBurst == 0 {
		c.AcceptBurst = c.AcceptRate
	}
}

// validate checks that the configuration is usable.
func (c *HTTPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid WriteTimeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("invalid IdleTimeout %v: must be >= 0", c.IdleTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("invalid ChunkSize %d: must be >= 0", c.ChunkSize)
	}
	return nil
}
