package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/service"
)

var (
	queryParams string
	queryProps  []string
	queryCache  bool
	queryTTL    int
)

var queryCmd = &cobra.Command{
	Use:   "query <queryType>",
	Short: "Run one query-contract request against the knowledge graph",
	Example: `  warp query getNodeById --params '{"nodeType":"Task","id":"<uuid>"}'
  warp query findNodesByLabel --params '{"nodeType":"Rule","filter":{"isActive":true}}'
  warp query getEntityHistory --params '{"entityId":"<uuid>","entityType":"Task"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(queryParams)
		if err != nil {
			return err
		}

		svc, cleanup, err := buildService(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		req := service.QueryRequest{
			QueryType:          args[0],
			Parameters:         params,
			RequiredProperties: queryProps,
		}
		if queryCache {
			req.CacheOptions = &service.CacheOptions{UseCache: true, TTLSeconds: queryTTL}
		}

		return printJSON(cmd, svc.Query(cmd.Context(), req))
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryParams, "params", "{}", "Query parameters as JSON")
	queryCmd.Flags().StringSliceVar(&queryProps, "props", nil, "Restrict returned properties")
	queryCmd.Flags().BoolVar(&queryCache, "cache", false, "Serve from the result cache when possible")
	queryCmd.Flags().IntVar(&queryTTL, "ttl", 0, "Cache TTL in seconds (0 uses the configured default)")
}

func parseParams(raw string) (map[string]any, error) {
	params := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("invalid --params JSON: %w", err)
	}
	return params, nil
}

func marshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
