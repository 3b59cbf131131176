package main

import "github.com/spf13/cobra"

// buildToolServersCmd creates the "tool-servers" command group for
// registering a user's external MCP tool servers —
// the self-service counterpart to the operator's config-level
// tool_servers list (internal/gateway/toolservers.go).
func buildToolServersCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "tool-servers", Short: "Inspect and register external MCP tool servers"}

	var userID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's tool servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolServersList(cmd, *configPath, userID)
		},
	}
	list.Flags().StringVar(&userID, "user", "", "Owning user id")
	_ = list.MarkFlagRequired("user")

	var name, transport, url, command string
	var args []string
	create := &cobra.Command{
		Use:   "add",
		Short: "Register an external tool server",
		RunE: func(cmd *cobra.Command, cargs []string) error {
			return runToolServersAdd(cmd, *configPath, userID, name, transport, url, command, args)
		},
	}
	create.Flags().StringVar(&userID, "user", "", "Owning user id")
	create.Flags().StringVar(&name, "name", "", "Tool server name")
	create.Flags().StringVar(&transport, "transport", "stdio", `Transport: "stdio" or "sse"`)
	create.Flags().StringVar(&url, "url", "", "Endpoint URL (sse transport)")
	create.Flags().StringVar(&command, "command", "", "Command to spawn (stdio transport)")
	create.Flags().StringSliceVar(&args, "args", nil, "Command arguments (stdio transport)")
	_ = create.MarkFlagRequired("user")
	_ = create.MarkFlagRequired("name")

	cmd.AddCommand(list, create)
	return cmd
}
