package main

import "github.com/spf13/cobra"

// buildSkillsCmd creates the "skills" command group, the same thin
// Store-backed convenience as "agents" but over the Skill entity
// the get_skill_instructions built-in reads.
func buildSkillsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "skills", Short: "Inspect and seed skills"}

	var userID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSkillsList(cmd, *configPath, userID)
		},
	}
	list.Flags().StringVar(&userID, "user", "", "Owning user id")
	_ = list.MarkFlagRequired("user")

	var name, instructions string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a skill",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSkillsCreate(cmd, *configPath, userID, name, instructions)
		},
	}
	create.Flags().StringVar(&userID, "user", "", "Owning user id")
	create.Flags().StringVar(&name, "name", "", "Skill name, unique per user")
	create.Flags().StringVar(&instructions, "instructions", "", "Skill instructions text")
	_ = create.MarkFlagRequired("user")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("instructions")

	cmd.AddCommand(list, create)
	return cmd
}
