package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	httpadapter "github.com/marmos91/dhttpd/pkg/adapter/http"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)

	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 9090, cfg.Server.Metrics.Port)
	assert.False(t, cfg.Server.Metrics.Enabled)

	assert.Equal(t, "filesystem", cfg.Content.Type)
	assert.NotNil(t, cfg.Content.Filesystem)
	assert.Equal(t, "/var/www/dhttpd", cfg.Content.Filesystem["root"])

	assert.Equal(t, "memory", cfg.Auth.Nonces.Type)

	assert.True(t, cfg.Adapters.HTTP.Enabled)
	assert.Equal(t, 8080, cfg.Adapters.HTTP.Port)
	assert.Equal(t, "dhttpd", cfg.Adapters.HTTP.Realm)
	assert.Equal(t, httpadapter.DefaultChunkSize, cfg.Adapters.HTTP.ChunkSize)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := Config{
		Logging: LoggingConfig{Level: "debug"},
		Server:  ServerConfig{ShutdownTimeout: 5 * time.Second},
		Content: ContentConfig{Type: "s3"},
		Adapters: AdaptersConfig{
			HTTP: httpadapter.HTTPConfig{Enabled: true, Port: 9999},
		},
	}
	ApplyDefaults(&cfg)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "s3", cfg.Content.Type)
	assert.Equal(t, 9999, cfg.Adapters.HTTP.Port)
}

func TestApplyDefaults_AdapterInheritsServerShutdown(t *testing.T) {
	cfg := Config{
		Server: ServerConfig{ShutdownTimeout: 12 * time.Second},
	}
	ApplyDefaults(&cfg)

	assert.Equal(t, 12*time.Second, cfg.Adapters.HTTP.ShutdownTimeout)
}

func TestApplyDefaults_ExplicitlyDisabledAdapterStaysDisabled(t *testing.T) {
	cfg := Config{
		Adapters: AdaptersConfig{
			HTTP: httpadapter.HTTPConfig{Enabled: false, Port: 9000},
		},
	}
	ApplyDefaults(&cfg)

	assert.False(t, cfg.Adapters.HTTP.Enabled,
		"a configured but disabled adapter must not be force-enabled")
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.NoError(t, Validate(cfg), "the default configuration must validate")
	assert.True(t, cfg.Adapters.HTTP.Enabled)
}
