package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	httpadapter "github.com/marmos91/dhttpd/pkg/adapter/http"
)

// Config represents the complete dhttpd configuration.
//
// This structure captures all configurable aspects of the server:
//   - Logging configuration
//   - Server-wide settings (shutdown, metrics endpoint)
//   - Content resolver selection and backend-specific configuration
//   - Digest authentication (user table, protected prefixes, nonce store)
//   - TLS identity
//   - Protocol adapter configurations
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DHTTPD_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// Backend Configuration Pattern:
// Each resolver and nonce store implementation defines its own
// configuration type and factory. Config carries type-specific sections
// as raw maps (e.g. content.filesystem, content.s3) and only the section
// matching the selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Content specifies the content resolver type and its configuration
	Content ContentConfig `mapstructure:"content"`

	// Auth configures Digest authentication
	Auth AuthConfig `mapstructure:"auth"`

	// TLS configures the certificate identity for secure serving
	TLS TLSConfig `mapstructure:"tls"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus metrics endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled turns metrics collection and the /metrics server on
	Enabled bool `mapstructure:"enabled"`

	// Port is the metrics server TCP port
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// ContentConfig specifies content resolver configuration.
//
// The Type field determines which resolver implementation is used.
// Only the corresponding type-specific section is decoded.
type ContentConfig struct {
	// Type specifies which content resolver implementation to use
	// Valid values: filesystem, memory, s3
	Type string `mapstructure:"type" validate:"required,oneof=filesystem memory s3"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`
}

// AuthConfig configures Digest authentication.
type AuthConfig struct {
	// Users maps usernames to passwords
	Users map[string]string `mapstructure:"users"`

	// ProtectedPrefixes lists URI prefixes requiring authentication.
	// "/" protects everything; empty disables authentication.
	ProtectedPrefixes []string `mapstructure:"protected_prefixes"`

	// Nonces specifies the nonce registry backing store
	Nonces NonceConfig `mapstructure:"nonces"`
}

// NonceConfig specifies the authentication nonce registry.
//
// The Type field determines which registry implementation is used.
type NonceConfig struct {
	// Type specifies the registry implementation
	// Valid values: memory (ephemeral), badger (persistent)
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// TLSConfig specifies the server certificate identity.
type TLSConfig struct {
	// CertFile is the PEM-encoded certificate chain path
	CertFile string `mapstructure:"cert_file"`

	// KeyFile is the PEM-encoded private key path
	KeyFile string `mapstructure:"key_file"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// HTTP contains the HTTP/1.1 adapter configuration.
	// Uses the httpadapter.HTTPConfig type directly to avoid duplication.
	HTTP httpadapter.HTTPConfig `mapstructure:"http"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DHTTPD_*)
//  2. Configuration file
//  3. Default values
//
// configPath may be empty, in which case the default location is
// searched. A missing config file is not an error; defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the DHTTPD_ prefix with underscores,
	// e.g. DHTTPD_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DHTTPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dhttpd/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file is fine; defaults apply
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, falling back to the
// current directory when the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dhttpd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dhttpd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
