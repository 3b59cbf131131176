package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the gateway
// server: the primary entry point for running the runtime.
func buildServeCmd(configPath *string) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket turn-orchestration gateway",
		Long: `Start the gateway server. The server will:

  1. Load configuration from the specified file (or the default path)
  2. Open the session store (Postgres, or an in-memory store for dev)
  3. Build the per-user LM provider resolver and MCP tool orchestrator
  4. Serve /ws/chat, authenticating each handshake with a JWT
  5. Serve /metrics for Prometheus scraping

Graceful shutdown runs on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, *configPath, debug)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}
