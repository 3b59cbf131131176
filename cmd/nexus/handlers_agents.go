package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/nexuscore/fabric/internal/config"
	"github.com/nexuscore/fabric/internal/sessions"
	"github.com/nexuscore/fabric/pkg/models"
	"github.com/spf13/cobra"
)

func openStoreFromPath(configPath string) (sessions.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return openStore(cfg)
}

func runAgentsList(cmd *cobra.Command, configPath, userID string) error {
	store, err := openStoreFromPath(configPath)
	if err != nil {
		return err
	}
	agents, err := store.ListAgents(cmd.Context(), userID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(agents) == 0 {
		fmt.Fprintln(out, "no agents")
		return nil
	}
	for _, a := range agents {
		think := ""
		if a.Think {
			think = " [think]"
		}
		fmt.Fprintf(out, "%s\t%s%s\tmodel=%s\texcluded=%v\n", a.ID, a.Name, think, a.Model, a.ExcludedTools)
	}
	return nil
}

func runAgentsCreate(cmd *cobra.Command, configPath, userID, name, systemPrompt, model string, think bool) error {
	store, err := openStoreFromPath(configPath)
	if err != nil {
		return err
	}
	a := &models.Agent{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         name,
		SystemPrompt: systemPrompt,
		Model:        model,
		Think:        think,
	}
	if err := store.CreateAgent(cmd.Context(), a); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created agent %s (%s)\n", a.Name, a.ID)
	return nil
}
