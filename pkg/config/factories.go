package config

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dhttpd/internal/logger"
	"github.com/marmos91/dhttpd/pkg/adapter"
	httpadapter "github.com/marmos91/dhttpd/pkg/adapter/http"
	"github.com/marmos91/dhttpd/pkg/content"
	contentFs "github.com/marmos91/dhttpd/pkg/content/fs"
	contentMemory "github.com/marmos91/dhttpd/pkg/content/memory"
	contentS3 "github.com/marmos91/dhttpd/pkg/content/s3"
	"github.com/marmos91/dhttpd/pkg/metrics"
	"github.com/marmos91/dhttpd/pkg/nonce"
	nonceBadger "github.com/marmos91/dhttpd/pkg/nonce/badger"
)

// CreateResolver creates a content resolver based on configuration.
//
// This factory uses the Type field to pick the resolver implementation,
// decodes the type-specific configuration from the corresponding map and
// passes it to the resolver's constructor.
//
// Supported types:
//   - "filesystem": pkg/content/fs (docroot on the local filesystem)
//   - "memory": pkg/content/memory (in-memory, optionally preloaded)
//   - "s3": pkg/content/s3 (Amazon S3 or compatible object storage)
func CreateResolver(ctx context.Context, cfg *ContentConfig) (content.Resolver, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemResolver(cfg.Filesystem)
	case "memory":
		return createMemoryResolver(cfg.Memory)
	case "s3":
		return createS3Resolver(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown content resolver type: %q (supported: filesystem, memory, s3)", cfg.Type)
	}
}

// createFilesystemResolver creates a docroot-backed resolver.
func createFilesystemResolver(options map[string]any) (content.Resolver, error) {
	var resolverCfg contentFs.Config
	if err := mapstructure.Decode(options, &resolverCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem resolver config: %w", err)
	}

	if resolverCfg.Root == "" {
		return nil, fmt.Errorf("filesystem resolver: root is required")
	}

	resolver, err := contentFs.New(resolverCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem resolver: %w", err)
	}

	logger.Info("Filesystem resolver initialized: root=%s", resolverCfg.Root)
	return resolver, nil
}

// createMemoryResolver creates an in-memory resolver, optionally
// preloading it with fixed documents from the configuration.
func createMemoryResolver(options map[string]any) (content.Resolver, error) {
	type MemoryResolverConfig struct {
		// Documents maps URIs to literal string bodies
		Documents map[string]string `mapstructure:"documents"`
	}

	var resolverCfg MemoryResolverConfig
	if err := mapstructure.Decode(options, &resolverCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory resolver config: %w", err)
	}

	resolver := contentMemory.New()
	for uri, body := range resolverCfg.Documents {
		resolver.Put(uri, []byte(body))
	}

	logger.Info("Memory resolver initialized: %d preloaded document(s)", len(resolverCfg.Documents))
	return resolver, nil
}

// createS3Resolver creates an S3-backed resolver.
func createS3Resolver(ctx context.Context, options map[string]any) (content.Resolver, error) {
	var resolverCfg contentS3.Config
	if err := mapstructure.Decode(options, &resolverCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 resolver config: %w", err)
	}

	if resolverCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 resolver: bucket is required")
	}
	if resolverCfg.Region == "" {
		return nil, fmt.Errorf("S3 resolver: region is required")
	}

	resolver, err := contentS3.New(ctx, resolverCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 resolver: %w", err)
	}

	logger.Info("S3 resolver initialized: bucket=%s, region=%s, prefix=%s",
		resolverCfg.Bucket, resolverCfg.Region, resolverCfg.KeyPrefix)
	return resolver, nil
}

// CreateNonceRegistry creates a nonce registry based on configuration.
//
// Supported types:
//   - "memory": ephemeral, nonces lost on restart
//   - "badger": persistent, nonces survive restarts (BadgerDB entry TTL)
//
// ttl applies when the type-specific section does not override it.
func CreateNonceRegistry(ctx context.Context, cfg *NonceConfig, ttl time.Duration) (nonce.Registry, error) {
	switch cfg.Type {
	case "memory":
		return nonce.NewMemoryRegistry(ttl), nil
	case "badger":
		return createBadgerNonceRegistry(ctx, cfg.Badger, ttl)
	default:
		return nil, fmt.Errorf("unknown nonce registry type: %q (supported: memory, badger)", cfg.Type)
	}
}

// createBadgerNonceRegistry creates a BadgerDB-backed persistent nonce registry.
func createBadgerNonceRegistry(ctx context.Context, options map[string]any, ttl time.Duration) (nonce.Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var storeCfg nonceBadger.Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &storeCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("failed to decode badger nonce registry options: %w", err)
	}

	if storeCfg.DBPath == "" {
		return nil, fmt.Errorf("badger nonce registry: db_path is required")
	}
	if storeCfg.TTL == 0 {
		storeCfg.TTL = ttl
	}

	store, err := nonceBadger.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger nonce registry: %w", err)
	}

	logger.Info("Badger nonce registry initialized: path=%s ttl=%v", storeCfg.DBPath, storeCfg.TTL)
	return store, nil
}

// CreateCredentials builds the password policy from the auth section.
// Returns nil when no prefixes are protected, which leaves the adapter's
// default (everything public) in place.
func CreateCredentials(cfg *AuthConfig) *content.StaticCredentials {
	if len(cfg.ProtectedPrefixes) == 0 {
		return nil
	}

	return &content.StaticCredentials{
		Users:             cfg.Users,
		ProtectedPrefixes: cfg.ProtectedPrefixes,
	}
}

// CreateTLSIdentity loads the configured certificate pair. Returns nil
// when TLS is not configured.
func CreateTLSIdentity(cfg *TLSConfig) (*content.StaticTLSIdentity, error) {
	if cfg.CertFile == "" && cfg.KeyFile == "" {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}

	return &content.StaticTLSIdentity{Certs: []tls.Certificate{cert}}, nil
}

// AdaptersResult contains the created adapters plus the cleanup releasing
// resources the adapters do not own (e.g. a shared nonce registry).
type AdaptersResult struct {
	Adapters []adapter.Adapter

	// Cleanup must be called after all adapters have stopped
	Cleanup func()
}

// CreateAdapters creates all enabled protocol adapters from the
// configuration, wiring in the content resolver, credentials, TLS
// identity and nonce registry.
func CreateAdapters(ctx context.Context, cfg *Config, httpMetrics metrics.HTTPMetrics) (*AdaptersResult, error) {
	var adapters []adapter.Adapter
	cleanup := func() {}

	if cfg.Adapters.HTTP.Enabled {
		resolver, err := CreateResolver(ctx, &cfg.Content)
		if err != nil {
			return nil, err
		}

		var opts []httpadapter.Option

		if creds := CreateCredentials(&cfg.Auth); creds != nil {
			opts = append(opts, httpadapter.WithCredentials(creds))
		}

		identity, err := CreateTLSIdentity(&cfg.TLS)
		if err != nil {
			return nil, err
		}
		if identity != nil {
			opts = append(opts, httpadapter.WithTLSIdentity(identity))
		}

		// The adapter owns an in-memory registry by default; only a
		// persistent registry is created and closed out here
		if cfg.Auth.Nonces.Type == "badger" {
			registry, err := CreateNonceRegistry(ctx, &cfg.Auth.Nonces, cfg.Adapters.HTTP.NonceTTL)
			if err != nil {
				return nil, err
			}
			opts = append(opts, httpadapter.WithNonceRegistry(registry))
			cleanup = func() {
				if err := registry.Close(); err != nil {
					logger.Warn("Error closing nonce registry: %v", err)
				}
			}
		}

		adapters = append(adapters, httpadapter.New(cfg.Adapters.HTTP, resolver, httpMetrics, opts...))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return &AdaptersResult{Adapters: adapters, Cleanup: cleanup}, nil
}
