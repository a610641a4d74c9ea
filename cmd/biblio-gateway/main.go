// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the biblio-gateway CLI, the
// request-mediation layer between tool-invoking callers and the upstream
// bibliographic search API.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/biblio-gateway/internal/secrets"
	"github.com/pdiddy/biblio-gateway/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// logger is the process-wide structured logger, configured in the root
// pre-run and threaded into every component constructor.
var logger zerolog.Logger

// rootCmd is the base command for the biblio-gateway CLI.
var rootCmd = &cobra.Command{
	Use:   "biblio-gateway",
	Short: "Mediated access to a bibliographic search API",
	Long: `biblio-gateway executes bibliographic search queries against an upstream
XML OpenAPI with caching, rate limiting, and local persistence. Results
are normalized into stable records and memoized in an embedded SQLite
database so repeated queries never re-hit the network within the cache
TTL.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.InfoLevel
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).With().Timestamp().Logger()

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./biblio-gateway.yaml or ~/.config/biblio-gateway/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("biblio-gateway")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "biblio-gateway"))
		}
	}

	viper.SetEnvPrefix("BIBLIO_GATEWAY")
	// Nested keys map to env vars with dots replaced by underscores,
	// e.g. cache.ttl_days -> BIBLIO_GATEWAY_CACHE_TTL_DAYS.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("db_path", "biblio-gateway.db")
	viper.SetDefault("cache.ttl_days", 7)
	viper.SetDefault("rate_limit.limit", 30)
	viper.SetDefault("rate_limit.window", time.Minute)
	viper.SetDefault("rate_limit.max_queue_delay", 10*time.Second)
	viper.SetDefault("transport.timeout", 10*time.Second)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// buildConfig assembles the pipeline configuration from viper and the
// secrets directory. The secrets file supplies the API key only when
// neither config nor environment set one.
func buildConfig() types.Config {
	cfg := types.Config{
		APIKey: viper.GetString("api_key"),
		DBPath: viper.GetString("db_path"),
		Transport: types.TransportConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("transport.timeout"),
				UserAgent: viper.GetString("transport.user_agent"),
			},
			BaseURL:     viper.GetString("transport.base_url"),
			MaxRetries:  viper.GetInt("transport.max_retries"),
			BaseBackoff: viper.GetDuration("transport.base_backoff"),
		},
		RateLimit: types.RateLimitConfig{
			Limit:         viper.GetInt("rate_limit.limit"),
			Window:        viper.GetDuration("rate_limit.window"),
			MaxQueueDelay: viper.GetDuration("rate_limit.max_queue_delay"),
		},
		Cache: types.CacheConfig{
			TTLDays: viper.GetInt("cache.ttl_days"),
		},
	}
	if cfg.APIKey == "" {
		cfg.APIKey = loadedSecrets[secrets.APIKeyFile]
	}
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
