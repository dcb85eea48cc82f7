package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dhttpd/internal/logger"
	"github.com/marmos91/dhttpd/pkg/config"
	"github.com/marmos91/dhttpd/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := flag.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// CLI flags take precedence over file and environment
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	fmt.Println("dhttpd - embeddable HTTP/1.1 content server")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	// Shutdown on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metricsResult := config.InitializeMetrics(cfg)

	adaptersResult, err := config.CreateAdapters(ctx, cfg, metricsResult.HTTPMetrics)
	if err != nil {
		log.Fatalf("Failed to create adapters: %v", err)
	}
	defer adaptersResult.Cleanup()

	srv := server.New()
	for _, adp := range adaptersResult.Adapters {
		if err := srv.AddAdapter(adp); err != nil {
			log.Fatalf("Failed to register %s adapter: %v", adp.Protocol(), err)
		}
	}

	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")

	if err := srv.Serve(ctx); err != nil && err != context.Canceled {
		logger.Error("Server error: %v", err)
		os.Exit(1)
	}

	logger.Info("Shutdown complete")
}
