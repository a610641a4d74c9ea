// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/biblio-gateway/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the query cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report cache and article row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(buildConfig().DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		total, live, err := st.CacheStats(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		articles, err := st.CountArticles(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("cache entries: %d (%d live, %d expired)\n", total, live, total-live)
		fmt.Printf("articles:      %d\n", articles)
		return nil
	},
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired cache entries",
	Long: `Sweep removes cache rows whose expiry has passed. The query path never
deletes expired rows itself; run sweep periodically to reclaim space.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(buildConfig().DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		removed, err := st.SweepCache(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("removed %d expired cache entries\n", removed)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheSweepCmd)
	rootCmd.AddCommand(cacheCmd)
}
