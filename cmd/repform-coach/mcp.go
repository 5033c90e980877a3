package main

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	repmcp "github.com/claude/repform/internal/mcp"
)

func newMCPCmd(env *cliEnv) *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the repform MCP tools over stdio, backed by a remote server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if serverURL == "" {
				return fmt.Errorf("--server is required")
			}
			ds := repmcp.NewHTTPClient(strings.TrimRight(serverURL, "/"))
			return server.ServeStdio(repmcp.New(ds, Version, env.logger()))
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "repform server URL")
	return cmd
}
