package main

import (
	"fmt"

	"github.com/nexuscore/fabric/internal/sessions"
	"github.com/spf13/cobra"
)

func runConversationsList(cmd *cobra.Command, configPath, userID string) error {
	store, err := openStoreFromPath(configPath)
	if err != nil {
		return err
	}
	convs, err := store.ListConversations(cmd.Context(), userID, sessions.ListOptions{Limit: 100})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(convs) == 0 {
		fmt.Fprintln(out, "no conversations")
		return nil
	}
	for _, c := range convs {
		fmt.Fprintf(out, "%s\t%s\tupdated=%s\n", c.ID, c.Title, c.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runFramesList(cmd *cobra.Command, configPath, conversationID string) error {
	store, err := openStoreFromPath(configPath)
	if err != nil {
		return err
	}
	frames, err := store.ListFrames(cmd.Context(), conversationID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(frames) == 0 {
		fmt.Fprintln(out, "no frames")
		return nil
	}
	for _, f := range frames {
		fmt.Fprintf(out, "%s\tsummary=%q\tupdated=%s\n", f.ID, f.Summary, f.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runMessagesList(cmd *cobra.Command, configPath, frameID string, limit int) error {
	store, err := openStoreFromPath(configPath)
	if err != nil {
		return err
	}
	messages, err := store.GetMessages(cmd.Context(), frameID, limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(messages) == 0 {
		fmt.Fprintln(out, "no messages")
		return nil
	}
	for _, m := range messages {
		speaker := m.Speaker
		if speaker == "" {
			speaker = "-"
		}
		fmt.Fprintf(out, "[%s] %s: %s\n", m.Role, speaker, m.Content)
	}
	return nil
}
