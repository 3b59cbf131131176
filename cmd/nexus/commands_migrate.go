package main

import (
	"github.com/spf13/cobra"
)

// buildMigrateCmd creates the "migrate" command group for applying the
// session store's embedded schema (internal/sessions/migrations) against
// a configured Postgres database. This is operator tooling around a
// fixed, version-controlled schema, not the schema-design/migration
// authoring calls out of core scope.
func buildMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the session store's schema migrations",
	}
	var steps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd, *configPath, steps)
		},
	}
	up.Flags().IntVar(&steps, "steps", 0, "Number of migrations to apply (0 = all pending)")

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateDown(cmd, *configPath, steps)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd, *configPath)
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}
