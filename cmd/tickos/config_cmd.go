package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fentz26/tickos/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config with example tasks and events",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file for errors",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configForce bool

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
}

// starterConfig is the default configuration plus a small demo workload.
func starterConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Events = []config.EventSpec{
		{ID: 1, Name: "button", Action: config.ActionSpec{Kind: "log", Message: "button pressed"}},
	}
	cfg.Tasks = []config.TaskSpec{
		{Index: 0, Name: "heartbeat", PeriodMs: 1000, Action: config.ActionSpec{Kind: "log", Message: "heartbeat"}},
		{Index: 1, Name: "blink", PeriodMs: 10, Action: config.ActionSpec{Kind: "blink", DelayKey: 1, DurationMs: 500}},
		{Index: 2, Name: "press", PeriodMs: 5000, Action: config.ActionSpec{Kind: "trigger", Event: 1}},
	}
	return cfg
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := config.Save(configPath, starterConfig()); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Printf("%s: ok (%d tasks, %d events, tick %s)\n", configPath, len(cfg.Tasks), len(cfg.Events), cfg.TickPeriod())
	return nil
}
