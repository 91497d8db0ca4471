package main

import (
	"commitment-wall/annotator"
	"commitment-wall/config"
	"commitment-wall/database"
	"commitment-wall/repository"
	"commitment-wall/storage"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	envFile string
	addr    string
	dbPath  string

	cfg    config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "commitment-wall",
	Short: "A public wall of pledges with a CSV export",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.Addr = addr
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}

		zcfg := zap.NewProductionConfig()
		if cfg.Debug {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// openRepository initializes the database and loads the stored pledges.
func openRepository(cmd *cobra.Command) (*repository.Repository, error) {
	db, err := database.Init(cfg.DBPath, logger.Named("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	repo := repository.New(storage.NewKVStore(db), cfg.StorageKey)
	if err := repo.Load(cmd.Context()); err != nil {
		return nil, err
	}
	return repo, nil
}

func newAnnotator() annotator.Annotator {
	return annotator.NewMock(annotator.WithDelay(cfg.AnalyzeDelay))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Env file to load before reading WALL_* variables")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "Listen address (overrides WALL_ADDR)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides WALL_DB_PATH)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(listCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
