package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the HTTP surface
// (C11) over the fully-wired conversation orchestrator.
func buildServeCmd() *cobra.Command {
	var (
		mappingsPath string
		promptsPath  string
		debug        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the emission-agent HTTP server",
		Long: `Start the emission-agent HTTP server.

The server will:
1. Load the standardization mappings and prompts bundles
2. Build the tool registry (factors, micro, macro, file-analyzer, knowledge)
3. Build the LLM client, with proxy/direct failover if HTTP(S)_PROXY is set
4. Start the per-user session registry and the HTTP surface
5. Start a background sweep of stale uploads and result files

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with default config paths
  emission-agent serve

  # Start with custom mapping/prompt files
  emission-agent serve --mappings ./configs/mappings.yaml --prompts ./configs/prompts.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), serveOptions{
				mappingsPath: mappingsPath,
				promptsPath:  promptsPath,
				debug:        debug,
			})
		},
	}

	cmd.Flags().StringVar(&mappingsPath, "mappings", "configs/mappings.yaml", "Path to the standardization mappings YAML file")
	cmd.Flags().StringVar(&promptsPath, "prompts", "configs/prompts.yaml", "Path to the prompts YAML file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
