package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/nexuscore/fabric/pkg/models"
	"github.com/spf13/cobra"
)

func runSkillsList(cmd *cobra.Command, configPath, userID string) error {
	store, err := openStoreFromPath(configPath)
	if err != nil {
		return err
	}
	skills, err := store.ListSkills(cmd.Context(), userID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(skills) == 0 {
		fmt.Fprintln(out, "no skills")
		return nil
	}
	for _, s := range skills {
		fmt.Fprintf(out, "%s\t%s\n", s.ID, s.Name)
	}
	return nil
}

func runSkillsCreate(cmd *cobra.Command, configPath, userID, name, instructions string) error {
	store, err := openStoreFromPath(configPath)
	if err != nil {
		return err
	}
	sk := &models.Skill{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         name,
		Instructions: instructions,
	}
	if err := store.CreateSkill(cmd.Context(), sk); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created skill %s (%s)\n", sk.Name, sk.ID)
	return nil
}
