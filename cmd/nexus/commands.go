package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildRootCmd assembles the nexus root command and its subcommands,
// grounded on the teacher's cmd/nexus/commands.go root-assembly
// pattern.
func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "nexus",
		Short: "Multi-agent conversational runtime gateway",
		Long: `nexus runs the turn-orchestration and streaming fabric described in
the project's core specification: a per-session WebSocket handler that
drives an Administrator-routed loop of tool-calling sub-agents and
persists every turn to the session store.`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(),
		"Path to YAML configuration file")

	root.AddCommand(
		buildServeCmd(&configPath),
		buildMigrateCmd(&configPath),
		buildAgentsCmd(&configPath),
		buildSkillsCmd(&configPath),
		buildSessionsCmd(&configPath),
		buildToolServersCmd(&configPath),
	)
	return root
}
