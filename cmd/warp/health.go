package main

import (
	"github.com/spf13/cobra"

	"github.com/juanbermudez/warp-agent-system-sub000/pkg/version"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report backend and cache health",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := buildService(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		return printJSON(cmd, svc.Health(cmd.Context()))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.String())
	},
}
