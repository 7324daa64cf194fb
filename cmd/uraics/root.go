package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amasuba/uraics-revenue-assurance/internal/config"
)

const version = "v0.3.0"

var (
	configFile string
	verbose    bool

	// cfg is populated by the persistent pre-run before any subcommand.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "uraics",
	Short: "URAICS - revenue assurance and risk dashboard service",
	Long: `URAICS evaluates tax-compliance risk rules against the revenue
authority's relational replica, mirrors flagged taxpayers into a Neo4j
relationship store, and serves the dashboard REST API.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// loadConfig runs before every subcommand. Commands that never touch the
// backends skip it.
func loadConfig(cmd *cobra.Command, args []string) error {
	switch cmd.Name() {
	case "version", "help", "completion":
		return nil
	}

	loader := config.NewLoader(config.NewValidator())
	loaded, err := loader.LoadWithDefaults(configFile)
	if err != nil {
		return err
	}
	cfg = loaded

	setupLogging(cfg.Logging)
	return nil
}

func setupLogging(lc config.LoggingConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(lc.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("uraics " + version)
	},
}
