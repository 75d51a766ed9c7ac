package main

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/adityalohuni/tabcart/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve this tab over MCP on stdin/stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, "mcp:stdio")
		if err != nil {
			return err
		}
		defer s.Close()

		server := mcpserver.New(s.Tab, mcpserver.Options{
			Implementation: &mcp.Implementation{Name: "tabcart", Version: "v1.0.0"},
		})
		return server.Run(ctx, &mcp.StdioTransport{})
	},
}
