package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/mca/internal/config"
	"github.com/abhisek/mca/internal/engine"
	"github.com/abhisek/mca/internal/logging"
	"github.com/abhisek/mca/internal/store"
)

var (
	cfg    config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "mca",
	Short: "Metacognitive collaboration pattern engine",
	Long: "mca classifies how a user collaborates with an AI assistant into one of six\n" +
		"patterns (A-F), tracks the estimate across turns and recommends interventions.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		if db, _ := cmd.Flags().GetString("db"); db != "" {
			cfg.Store.Path = db
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides MCA_DB env var)")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML or TOML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// openEngine opens the engine configured by the root flags.
func openEngine(cmd *cobra.Command) (*engine.Engine, error) {
	e, err := engine.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	return e, nil
}

// openStore opens only the database, for read-only inspection commands.
func openStore() (*store.Store, error) {
	path := cfg.Store.Path
	if path == "" {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
	} else if err := store.EnsureDir(path); err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}
