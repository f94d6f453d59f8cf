// Package main provides the CLI entry point for the emission-agent
// conversation orchestrator.
//
// emission-agent answers natural-language questions about vehicle
// emissions by driving a bounded tool-use loop against an LLM, backed by
// five domain tools (emission-factor lookup, micro/macro emission
// calculation, file analysis, knowledge retrieval).
//
// # Basic usage
//
// Start the server:
//
//	emission-agent serve
//
// # Environment variables
//
// Configuration is read from the environment (see internal/config):
//
//   - EMISSION_AGENT_ADDR — listen address (default :8080)
//   - LLM_PROVIDER, LLM_API_KEY, LLM_BASE_URL, LLM_MODEL
//   - HTTP_PROXY / HTTPS_PROXY — enables proxy-first failover
//   - EMISSION_AGENT_DATA_DIR, EMISSION_AGENT_OUTPUTS_DIR, EMISSION_AGENT_TMP_DIR
//   - CORS_ORIGINS
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
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

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "emission-agent",
		Short: "emission-agent - conversational vehicle-emission assistant",
		Long: `emission-agent turns one user turn into one answer: it selects and
invokes emission-factor, micro/macro calculation, file-analysis, and
knowledge-retrieval tools against an LLM in tool-use mode, then returns
synthesized text plus structured chart/table payloads and downloadable
result files.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd())

	return rootCmd
}
