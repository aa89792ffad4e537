package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ayanobu/nicofetch/internal/app"
	"github.com/ayanobu/nicofetch/internal/config"
	"github.com/ayanobu/nicofetch/internal/logger"
	"github.com/ayanobu/nicofetch/internal/metrics"
	"github.com/ayanobu/nicofetch/internal/store"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nicofetch",
	Short: "Download videos and live streams from Niconico",
	Long: `nicofetch downloads videos, thumbnails, comments and metadata from
Niconico (nicovideo.jp), resuming partial downloads and keeping a
history of what has already been fetched.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file")
}

// setup builds the shared environment for a command run.
func setup() (*app.Context, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.Log)
	metrics.Register()

	return app.NewContext(cfg, log), nil
}

// openHistory attaches the configured history store. A broken store is
// not fatal for downloads; it only disables dedup and the history API.
func openHistory(appCtx *app.Context) {
	history, err := store.Open(appCtx.Config.Store)
	if err != nil {
		appCtx.Logger.Warn("history store unavailable, continuing without it", "error", err)
		return
	}
	appCtx.History = history
}
