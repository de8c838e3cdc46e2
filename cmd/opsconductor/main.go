// OpsConductor pipeline server — exposes the request pipeline over HTTP
// and orchestrates stage processing against the tool catalog, asset
// inventory, and LLM gateway.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/api"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/assets"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/catalog"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/config"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/conversation"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/database"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/llm"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/masking"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/metrics"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/pipeline"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/runner"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/stages"
)

const shutdownTimeout = 30 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	ctx := context.Background()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Configuration loaded",
		"catalog_source", cfg.Catalog.Source,
		"llm_model", cfg.LLM.Model)

	// 2. Build the tool catalog loader
	var loader catalog.Loader
	var dbClient *database.Client
	switch cfg.Catalog.Source {
	case config.CatalogSourceSQL:
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		dbClient, err = database.NewClient(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		loader = catalog.NewSQLLoader(dbClient.DB())
		slog.Info("Connected to PostgreSQL database")
	case config.CatalogSourceFS:
		loader = catalog.NewFSLoader(cfg.Catalog.Dir)
	}

	cat, err := catalog.New(ctx, loader)
	if err != nil {
		slog.Error("Failed to load tool catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("Tool catalog loaded", "tools", cat.Len())

	// 3. Initialize the LLM gateway, asset provider, and masking
	llmClient := llm.NewClient(cfg.LLM)
	provider := assets.NewProvider(cfg.Assets)
	sanitizer := masking.NewSanitizer()

	// 4. Step runners. Real execution transports are deployment-specific;
	// the default registry echoes inputs so plans run end to end in
	// dry-run form. Override per tool before go-live.
	registry := runner.NewRegistry()
	for _, profile := range cat.All() {
		registry.Register(profile.ToolName, runner.EchoRunner{})
	}

	// 5. Assemble the stage processors and orchestrator
	conversations := conversation.NewStore(cfg.Pipeline.ConversationMaxMessages)
	collector := metrics.NewCollector(cfg.Pipeline.MetricsHistorySize)
	orchestrator := pipeline.NewOrchestrator(cfg.Pipeline,
		stages.NewSelector(cfg.Pipeline, llmClient, cat, provider),
		stages.NewPlanner(cfg.Pipeline, llmClient, cat),
		stages.NewAnswerer(cfg.Pipeline, llmClient, provider, sanitizer),
		stages.NewExecutor(cfg.Pipeline, registry, sanitizer),
		provider, conversations, collector, sanitizer)
	slog.Info("Pipeline orchestrator initialized")

	// 6. SIGHUP reloads the tool catalog in place
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			if err := cat.Reload(ctx); err != nil {
				slog.Error("Catalog reload failed, keeping previous catalog", "error", err)
				continue
			}
			slog.Info("Tool catalog reloaded", "tools", cat.Len())
		}
	}()

	// 7. Start the HTTP server (non-blocking)
	server := api.NewServer(orchestrator, ":"+httpPort)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()
	slog.Info("OpsConductor started", "http_port", httpPort)

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown: drain in-flight requests
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("OpsConductor stopped")
}
