package main

import (
	"github.com/spf13/cobra"
)

// buildAgentsCmd creates the "agents" command group for inspecting and
// seeding agent personas directly against the session store,
// a thin operator convenience around the same Store the gateway uses —
// the full CRUD surface lives behind the HTTP API.
func buildAgentsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "agents", Short: "Inspect and seed agent personas"}

	var userID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentsList(cmd, *configPath, userID)
		},
	}
	list.Flags().StringVar(&userID, "user", "", "Owning user id")
	_ = list.MarkFlagRequired("user")

	var name, systemPrompt, model string
	var think bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an agent persona",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentsCreate(cmd, *configPath, userID, name, systemPrompt, model, think)
		},
	}
	create.Flags().StringVar(&userID, "user", "", "Owning user id")
	create.Flags().StringVar(&name, "name", "", "Agent name, unique per user")
	create.Flags().StringVar(&systemPrompt, "system-prompt", "", "Agent system prompt")
	create.Flags().StringVar(&model, "model", "", "Model override")
	create.Flags().BoolVar(&think, "think", false, "Enable think mode")
	_ = create.MarkFlagRequired("user")
	_ = create.MarkFlagRequired("name")

	cmd.AddCommand(list, create)
	return cmd
}
