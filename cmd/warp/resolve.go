package main

import (
	"github.com/spf13/cobra"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/service"
)

var (
	resolveUser       string
	resolveProject    string
	resolveTeam       string
	resolveOrg        string
	resolveCategories []string
	resolveWorkflow   string
	resolveRole       string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve effective scoped configuration for an execution context",
	Example: `  warp resolve --project <uuid> --categories rules,workflow
  warp resolve --user <uuid> --project <uuid> --categories persona --role coder`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := buildService(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		params := map[string]any{
			"context": map[string]any{
				"userId":    resolveUser,
				"projectId": resolveProject,
				"teamId":    resolveTeam,
				"orgId":     resolveOrg,
			},
			"categories": resolveCategories,
		}
		if resolveWorkflow != "" {
			params["workflowName"] = resolveWorkflow
		}
		if resolveRole != "" {
			params["personaRole"] = resolveRole
		}

		return printJSON(cmd, svc.Query(cmd.Context(), service.QueryRequest{
			QueryType:  service.QueryResolveConfigByScope,
			Parameters: params,
		}))
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveUser, "user", "", "User ID for the USER scope level")
	resolveCmd.Flags().StringVar(&resolveProject, "project", "", "Project ID for the PROJECT scope level")
	resolveCmd.Flags().StringVar(&resolveTeam, "team", "", "Team ID for the TEAM scope level")
	resolveCmd.Flags().StringVar(&resolveOrg, "org", "", "Organization ID for the ORG scope level")
	resolveCmd.Flags().StringSliceVar(&resolveCategories, "categories", []string{"rules"}, "Categories to resolve (rules, workflow, persona, code_snippets)")
	resolveCmd.Flags().StringVar(&resolveWorkflow, "workflow", "", "Narrow workflow resolution to one name")
	resolveCmd.Flags().StringVar(&resolveRole, "role", "", "Narrow persona resolution to one role")
}
