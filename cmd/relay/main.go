// Package main provides the CLI entry point for the relay service.
//
// Relay fronts a hosted conversational agent runtime with a synchronous
// chat API: it streams each turn from the runtime, reconciles the chunked
// output into final text, images, files, and tool invocation records, and
// serves the result over HTTP.
//
// # Basic Usage
//
// Start the server:
//
//	relay serve --config relay.yaml
//
// # Environment Variables
//
//   - RELAY_CONFIG: Path to configuration file (default: relay.yaml)
//
// Any ${VAR} reference inside the configuration file is expanded from the
// environment at load time.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "relay",
		Short:        "Relay - synchronous gateway for a streaming agent runtime",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}

// defaultConfigPath resolves the config file path from flags or env.
func defaultConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("RELAY_CONFIG"); env != "" {
		return env
	}
	return "relay.yaml"
}
