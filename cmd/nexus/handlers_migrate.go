package main

import (
	"fmt"

	"github.com/nexuscore/fabric/internal/config"
	"github.com/nexuscore/fabric/internal/sessions"
	"github.com/spf13/cobra"
)

// openMigrator loads config and opens a Migrator against the
// configured Postgres database. A blank database URL is a usage error
// here: the in-memory store has no schema to migrate.
func openMigrator(configPath string) (*sessions.Migrator, func() error, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("database.url is not configured; migrate requires Postgres")
	}
	pcfg := sessions.DefaultPostgresConfig()
	store, err := sessions.NewPostgresStoreFromDSN(cfg.Database.URL, pcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	migrator, err := sessions.NewMigrator(store.DB())
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return migrator, store.Close, nil
}

func runMigrateUp(cmd *cobra.Command, configPath string, steps int) error {
	migrator, closeFn, err := openMigrator(configPath)
	if err != nil {
		return err
	}
	defer closeFn()
	applied, err := migrator.Up(cmd.Context(), steps)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(applied) == 0 {
		fmt.Fprintln(out, "no pending migrations")
		return nil
	}
	fmt.Fprintln(out, "applied:")
	for _, id := range applied {
		fmt.Fprintf(out, "  - %s\n", id)
	}
	return nil
}

func runMigrateDown(cmd *cobra.Command, configPath string, steps int) error {
	migrator, closeFn, err := openMigrator(configPath)
	if err != nil {
		return err
	}
	defer closeFn()
	reverted, err := migrator.Down(cmd.Context(), steps)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(reverted) == 0 {
		fmt.Fprintln(out, "nothing to roll back")
		return nil
	}
	fmt.Fprintln(out, "rolled back:")
	for _, id := range reverted {
		fmt.Fprintf(out, "  - %s\n", id)
	}
	return nil
}

func runMigrateStatus(cmd *cobra.Command, configPath string) error {
	migrator, closeFn, err := openMigrator(configPath)
	if err != nil {
		return err
	}
	defer closeFn()
	applied, pending, err := migrator.Status(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "applied:")
	for _, a := range applied {
		fmt.Fprintf(out, "  - %s (%s)\n", a.ID, a.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(out, "pending:")
	for _, p := range pending {
		fmt.Fprintf(out, "  - %s\n", p.ID)
	}
	return nil
}
