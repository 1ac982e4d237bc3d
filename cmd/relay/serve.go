package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/relay/internal/artifacts"
	"github.com/haasonsaas/relay/internal/bridge"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/gateway"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/orchestrator"
	"github.com/haasonsaas/relay/internal/reconcile"
	"github.com/haasonsaas/relay/internal/runtime"
	"github.com/haasonsaas/relay/internal/sessions"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(defaultConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)
	metrics := observability.NewMetrics()

	azureClient, err := runtime.NewAzureClient(runtime.AzureConfig{
		Endpoint:   cfg.Runtime.Endpoint,
		APIKey:     cfg.Runtime.APIKey,
		APIVersion: cfg.Runtime.APIVersion,
		AgentID:    cfg.Runtime.AgentID,
		MaxRetries: cfg.Runtime.MaxRetries,
		RetryDelay: cfg.Runtime.RetryDelay,
	})
	if err != nil {
		return fmt.Errorf("runtime client: %w", err)
	}

	adapterBase := cfg.Files.BaseURL
	if adapterBase == "" {
		adapterBase = cfg.Runtime.Endpoint
	}
	adapter := runtime.NewOpenAIAdapter(cfg.Files.APIKey, adapterBase)

	store, err := newSessionStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	defer store.Close()

	reconciler := reconcile.New(adapter, metrics, logger)
	orch := orchestrator.New(azureClient, bridge.New(logger), reconciler, metrics, logger, orchestrator.Config{
		MaxApprovalRounds: cfg.Agent.MaxApprovalRounds,
		SubmitTimeout:     cfg.Agent.SubmitTimeout,
	})
	manager := sessions.NewManager(store, azureClient, metrics, logger, cfg.Session.LockTimeout)
	artifactSvc := artifacts.NewService(adapter, logger)

	server := gateway.NewServer(gateway.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, manager, orch, artifactSvc, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		return err
	}
	logger.Info("relay started", "agent_id", cfg.Runtime.AgentID)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	return nil
}

func newSessionStore(cfg config.DatabaseConfig) (sessions.Store, error) {
	switch cfg.Driver {
	case "postgres":
		pgConfig := sessions.DefaultPostgresConfig()
		pgConfig.MaxOpenConns = cfg.MaxConnections
		pgConfig.ConnMaxLifetime = cfg.ConnMaxLifetime
		return sessions.NewPostgresStoreFromDSN(cfg.URL, pgConfig)
	default:
		return sessions.NewMemoryStore(), nil
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
