package config

import (
	"strings"
	"time"

	httpadapter "github.com/marmos91/dhttpd/pkg/adapter/http"
	"github.com/marmos91/dhttpd/pkg/nonce"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Called after loading configuration from file and environment to fill in
// missing values. Zero values (0, "", false, nil) are replaced with
// defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyContentDefaults(&cfg.Content)
	applyAuthDefaults(&cfg.Auth)
	applyAdaptersDefaults(&cfg.Adapters, cfg.Server.ShutdownTimeout)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// applyContentDefaults sets content resolver defaults.
func applyContentDefaults(cfg *ContentConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}

	if _, ok := cfg.Filesystem["root"]; !ok {
		cfg.Filesystem["root"] = "/var/www/dhttpd"
	}
}

// applyAuthDefaults sets authentication defaults.
func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.Nonces.Type == "" {
		cfg.Nonces.Type = "memory"
	}
	if cfg.Nonces.Badger == nil {
		cfg.Nonces.Badger = make(map[string]any)
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig, serverShutdown time.Duration) {
	// Enable the HTTP adapter by default when no adapter section was
	// configured, so a fresh install serves without a config file.
	if !cfg.HTTP.Enabled && cfg.HTTP.Port == 0 {
		cfg.HTTP.Enabled = true
	}

	applyHTTPDefaults(&cfg.HTTP, serverShutdown)
}

// applyHTTPDefaults sets HTTP adapter defaults. These mirror what the
// adapter itself applies so that a loaded Config is fully populated for
// validation and config file generation.
func applyHTTPDefaults(cfg *httpadapter.HTTPConfig, serverShutdown time.Duration) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Realm == "" {
		cfg.Realm = "dhttpd"
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = serverShutdown
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = httpadapter.DefaultChunkSize
	}
	if cfg.NonceTTL == 0 {
		cfg.NonceTTL = nonce.DefaultTTL
	}

	// MaxConnections and IdleTimeout default to 0 (unlimited)
}

// GetDefaultConfig returns a Config with all default values applied.
//
// Useful for generating sample configuration files and for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Content: ContentConfig{
			Filesystem: make(map[string]any),
			Memory:     make(map[string]any),
		},
		Adapters: AdaptersConfig{
			HTTP: httpadapter.HTTPConfig{
				Enabled: true,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
