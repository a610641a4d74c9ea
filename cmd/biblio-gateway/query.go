// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/biblio-gateway/internal/pipeline"
	"github.com/pdiddy/biblio-gateway/internal/ratelimit"
	"github.com/pdiddy/biblio-gateway/internal/store"
	"github.com/pdiddy/biblio-gateway/internal/transport"
	"github.com/pdiddy/biblio-gateway/pkg/types"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Execute a search query against the upstream API",
	Long: `Query executes one bibliographic search. Results are served from the
local cache when a live entry exists; otherwise the upstream API is
called under rate-limit admission control and the normalized result is
persisted before being printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		tool, _ := cmd.Flags().GetString("tool")
		query, _ := cmd.Flags().GetString("query")
		rawParams, _ := cmd.Flags().GetStringArray("param")
		page, _ := cmd.Flags().GetInt("page")
		pageCount, _ := cmd.Flags().GetInt("pagecount")
		refresh, _ := cmd.Flags().GetBool("refresh")
		apiKey, _ := cmd.Flags().GetString("api-key")
		asJSON, _ := cmd.Flags().GetBool("json")
		outPath, _ := cmd.Flags().GetString("out")

		params := make(map[string]string)
		if query != "" {
			params["query"] = query
		}
		for _, kv := range rawParams {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("invalid --param %q: expected key=value", kv)
			}
			params[k] = v
		}
		if len(params) == 0 {
			return fmt.Errorf("query is empty: provide --query or at least one --param")
		}

		cfg := buildConfig()
		if cfg.APIKey == "" && apiKey == "" {
			return fmt.Errorf("no API key configured: set BIBLIO_GATEWAY_API_KEY, api_key in the config file, or .secrets/biblio-api-key")
		}

		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		p := pipeline.New(
			st,
			transport.New(cfg.Transport, logger),
			ratelimit.New(cfg.RateLimit, logger),
			cfg,
			logger,
		)

		req := types.Request{
			Tool:      tool,
			Target:    target,
			Params:    params,
			Page:      page,
			PageCount: pageCount,
			Refresh:   refresh,
			APIKey:    apiKey,
		}

		result, err := p.Run(cmd.Context(), req)
		if err != nil {
			return err
		}

		if outPath != "" {
			if err := pipeline.WriteResultFile(outPath, req, result); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "Result saved to", outPath)
		}

		if asJSON {
			return pipeline.FormatJSON(result, os.Stdout)
		}
		pipeline.FormatTable(result, os.Stdout)
		return nil
	},
}

func init() {
	queryCmd.Flags().String("target", "article", "upstream collection to search")
	queryCmd.Flags().String("tool", "article_search", "tool name partitioning the cache")
	queryCmd.Flags().String("query", "", "free-text search terms (shorthand for --param query=...)")
	queryCmd.Flags().StringArray("param", nil, "additional search parameter as key=value (repeatable)")
	queryCmd.Flags().Int("page", 0, "result page (default 1)")
	queryCmd.Flags().Int("pagecount", 0, "records per page (default 10)")
	queryCmd.Flags().Bool("refresh", false, "bypass the cache read and re-fetch")
	queryCmd.Flags().String("api-key", "", "override the configured API key for this call")
	queryCmd.Flags().Bool("json", false, "output the result as JSON")
	queryCmd.Flags().String("out", "", "save the result to a YAML file")

	rootCmd.AddCommand(queryCmd)
}
