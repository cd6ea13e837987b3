package main

import (
	"github.com/spf13/cobra"

	"github.com/danpilch/threadscope/pkg/mcpserver"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve capture analysis tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.logger.Info("MCP server starting on stdio")
			return mcpserver.New(a.logger).ServeStdio()
		},
	}
}
