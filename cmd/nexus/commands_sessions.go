package main

import "github.com/spf13/cobra"

// buildSessionsCmd creates the "sessions" command group for inspecting
// the Conversation -> Frame -> Message hierarchy
// outside of a live WebSocket connection — useful for debugging a
// stuck turn or confirming persisted content after a test run.
func buildSessionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "sessions", Short: "Inspect persisted conversations and frames"}

	var userID string
	convs := &cobra.Command{
		Use:   "conversations",
		Short: "List a user's conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversationsList(cmd, *configPath, userID)
		},
	}
	convs.Flags().StringVar(&userID, "user", "", "Owning user id")
	_ = convs.MarkFlagRequired("user")

	var conversationID string
	frames := &cobra.Command{
		Use:   "frames",
		Short: "List a conversation's frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFramesList(cmd, *configPath, conversationID)
		},
	}
	frames.Flags().StringVar(&conversationID, "conversation", "", "Conversation id")
	_ = frames.MarkFlagRequired("conversation")

	var frameID string
	var limit int
	messages := &cobra.Command{
		Use:   "messages",
		Short: "List a frame's messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMessagesList(cmd, *configPath, frameID, limit)
		},
	}
	messages.Flags().StringVar(&frameID, "frame", "", "Frame id")
	messages.Flags().IntVar(&limit, "limit", 50, "Maximum messages to show")
	_ = messages.MarkFlagRequired("frame")

	cmd.AddCommand(convs, frames, messages)
	return cmd
}
