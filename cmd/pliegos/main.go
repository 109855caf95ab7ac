// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the pliegos CLI. It opens catalog
// result pages for a query, scrapes each page, and aggregates the records
// into one stored result.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/pliegos/internal/secrets"
	"github.com/pdiddy/pliegos/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets secrets.Secrets

// logger is configured from --log-level before any command runs.
var logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

var rootCmd = &cobra.Command{
	Use:   "pliegos",
	Short: "Metasearch and scraping for chapbook catalogs",
	Long: `pliegos searches the online catalogs of Spanish chapbooks (pliegos de
cordel) in parallel. Each catalog result page is opened in its own tab,
scraped once it settles, and the records are aggregated into a single
result stored in a local SQLite database.

Use "search" to run a query, "last" to export the stored result, and
"history" to list past searches.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		if level == "" {
			level = viper.GetString("log_level")
		}
		if level != "" {
			lvl, err := log.ParseLevel(level)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", level, err)
			}
			logger.SetLevel(lvl)
		}

		s, err := secrets.Load(".secrets/", logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			logger.Debug("loaded secrets", "keys", s.Keys())
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./pliegos.yaml or ~/.config/pliegos/pliegos.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("db", "", "SQLite result store (default pliegos.db)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pliegos")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "pliegos"))
		}
	}

	viper.SetEnvPrefix("PLIEGOS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// pipelineConfig layers the config file and environment over the built-in
// defaults, then applies the flags shared by every command.
func pipelineConfig(cmd *cobra.Command) types.PipelineConfig {
	cfg := types.DefaultPipelineConfig()

	if v := viper.GetString("browser.engine"); v != "" {
		cfg.Browser.Engine = types.BrowserEngine(v)
	}
	if viper.IsSet("browser.headless") {
		cfg.Browser.Headless = viper.GetBool("browser.headless")
	}
	if v := viper.GetString("browser.exec_path"); v != "" {
		cfg.Browser.ExecPath = v
	}
	if v := viper.GetString("browser.user_agent"); v != "" {
		cfg.Browser.UserAgent = v
	}
	if v := viper.GetString("browser.image"); v != "" {
		cfg.Browser.Image = v
	}
	setInt(&cfg.Browser.DebugPort, "browser.debug_port")
	setDuration(&cfg.Browser.Timeout, "browser.timeout")
	setDuration(&cfg.Browser.TabDelay, "browser.tab_delay")
	setInt(&cfg.Browser.MaxRetries, "browser.max_retries")

	setDuration(&cfg.Scrape.JobTimeout, "scrape.job_timeout")
	setDuration(&cfg.Scrape.DefaultSettleDelay, "scrape.default_settle_delay")
	setInt(&cfg.Scrape.PagesPerSource, "scrape.pages_per_source")
	for id, d := range viper.GetStringMapString("scrape.settle_delays") {
		if parsed, err := time.ParseDuration(d); err == nil {
			cfg.Scrape.SettleDelays[types.SourceID(id)] = parsed
		} else {
			logger.Warn("ignoring settle delay", "source", id, "value", d, "err", err)
		}
	}

	if v := viper.GetString("sink.path"); v != "" {
		cfg.Sink.Path = v
	}
	setDuration(&cfg.Sink.PollInterval, "sink.poll_interval")
	setInt(&cfg.Sink.MaxChecks, "sink.max_checks")

	if v := viper.GetString("bus.nats_url"); v != "" {
		cfg.Bus.NATSURL = v
	}
	if v := viper.GetString("bus.subject"); v != "" {
		cfg.Bus.Subject = v
	}
	cfg.Bus.Token = loadedSecrets.Default(secrets.NATSToken, viper.GetString("bus.token"))

	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Sink.Path = db
	}
	return cfg
}

func setDuration(dst *time.Duration, key string) {
	if viper.IsSet(key) {
		if d := viper.GetDuration(key); d > 0 {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if viper.IsSet(key) {
		if n := viper.GetInt(key); n > 0 {
			*dst = n
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
