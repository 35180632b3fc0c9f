package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/adaptiq/internal/config"
	"github.com/abhisek/adaptiq/internal/logging"
	"github.com/abhisek/adaptiq/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "adaptiq",
	Short:         "Computerized adaptive testing engine",
	Long:          "adaptiq is an IRT-based adaptive testing engine with ability estimation, exposure-controlled item selection and skill diagnostics.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides ADAPTIQ_DB env var)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().String("items", "", "Path to item bank YAML (overrides config)")

	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads --config and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		if _, err := logging.ParseLevel(lvl); err != nil {
			return cfg, err
		}
		cfg.LogLevel = lvl
	}
	if p, _ := cmd.Flags().GetString("items"); p != "" {
		cfg.ItemBank = p
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.DBPath = p
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return logger, nil
}

// resolveDBPath returns the database path using --db / config (highest
// priority), then ADAPTIQ_DB env var, then the default XDG path.
func resolveDBPath(cfg config.Config) (string, error) {
	if cfg.DBPath != "" {
		return cfg.DBPath, store.EnsureDir(cfg.DBPath)
	}
	return store.DefaultDBPath()
}
