package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kerrigan/swarm/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an orchestrating agent dispatch issues and inspect sessions
natively. Configure in Claude Code with:

  {
    "mcpServers": {
      "swarm": { "command": "swarm", "args": ["mcp"] }
    }
  }

Available tools: swarm_dispatch_issue, swarm_list_sessions,
swarm_session_status, swarm_sweep_sessions, swarm_session_history`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := getController()
		if err != nil {
			return err
		}
		in, err := getIntake()
		if err != nil {
			return err
		}
		hist, err := getHistory()
		if err != nil {
			return err
		}

		srv := mcp.NewServer(ctrl, in, getRegistry(), hist)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
