package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fentz26/tickos/internal/config"
	"github.com/fentz26/tickos/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "tickos",
	Short: "tickos - cooperative tick scheduler daemon and CLI",
	Long: `tickos runs a cooperative, tick-driven scheduler of periodic tasks,
latched events and soft delays, and exposes it over a local HTTP control plane.`,
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr    string
	configPath string
	logLevel   string
	logFormat  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7467", "API server address")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format override (text, json)")

	// Add subcommands
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(eventCmd)
	rootCmd.AddCommand(delayCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads --config and applies the logging flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		if !logging.ValidFormat(logFormat) {
			return nil, fmt.Errorf("invalid --log-format %q", logFormat)
		}
		cfg.LogFormat = logFormat
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
