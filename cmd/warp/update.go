package main

import (
	"github.com/spf13/cobra"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/service"
)

var updateParams string

var updateCmd = &cobra.Command{
	Use:   "update <updateType>",
	Short: "Run one update-contract request against the knowledge graph",
	Example: `  warp update createNode --params '{"nodeType":"Task","properties":{"title":"Ship it","taskLevel":"TASK"}}'
  warp update updateNodeProperties --params '{"nodeType":"Task","id":"<uuid>","properties":{"status":"DONE"}}'
  warp update batchUpdate --params '{"operations":[...]}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(updateParams)
		if err != nil {
			return err
		}

		svc, cleanup, err := buildService(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		return printJSON(cmd, svc.Update(cmd.Context(), service.UpdateRequest{
			UpdateType: args[0],
			Parameters: params,
		}))
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateParams, "params", "{}", "Update parameters as JSON")
}
