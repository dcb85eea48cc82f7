package config

import (
	"github.com/marmos91/dhttpd/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// HTTPMetrics is the collector for the HTTP adapter (never nil,
	// no-op when metrics are disabled)
	HTTPMetrics metrics.HTTPMetrics
}

// InitializeMetrics creates all metrics components based on configuration.
//
// When metrics are enabled:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed collectors
//
// When disabled, the server is nil and collectors are no-ops with zero
// overhead.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			Server:      nil,
			HTTPMetrics: metrics.NoopHTTPMetrics{},
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server:      server,
		HTTPMetrics: metrics.NewHTTPMetrics(),
	}
}
