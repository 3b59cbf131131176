package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/nexuscore/fabric/pkg/models"
	"github.com/spf13/cobra"
)

func runToolServersList(cmd *cobra.Command, configPath, userID string) error {
	store, err := openStoreFromPath(configPath)
	if err != nil {
		return err
	}
	servers, err := store.ListToolServers(cmd.Context(), userID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(servers) == 0 {
		fmt.Fprintln(out, "no tool servers")
		return nil
	}
	for _, s := range servers {
		status := "disabled"
		if s.Enabled {
			status = "enabled"
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Transport, status)
	}
	return nil
}

func runToolServersAdd(cmd *cobra.Command, configPath, userID, name, transport, url, command string, args []string) error {
	store, err := openStoreFromPath(configPath)
	if err != nil {
		return err
	}
	t := models.TransportStdio
	if transport == "sse" {
		t = models.TransportSSE
	}
	ts := &models.ToolServer{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Transport: t,
		URL:       url,
		Command:   command,
		Args:      args,
		Enabled:   true,
	}
	if err := store.CreateToolServer(cmd.Context(), ts); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "registered tool server %s (%s)\n", ts.Name, ts.ID)
	return nil
}
