package main

import (
	"github.com/spf13/cobra"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/service"
)

var planCmd = &cobra.Command{
	Use:   "plan <parent-task-id>",
	Short: "Compute the dependency graph and execution plan for a task's children",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := buildService(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		return printJSON(cmd, svc.AnalyzeDependencies(cmd.Context(), service.AnalysisRequest{
			ParentTaskID: args[0],
		}))
	},
}
