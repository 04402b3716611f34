package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/maltedev/basket-harvester/internal/config"
	"github.com/maltedev/basket-harvester/internal/database"
	"github.com/maltedev/basket-harvester/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	cfg *config.Config
	log *slog.Logger

	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:           "harvester",
	Short:         "harvester collects product listings from retail search pages.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("log-level") {
			c.Logging.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			c.Logging.Format = logFormat
		}

		cfg = c
		log = logger.New(cfg.Logging.Level, cfg.Logging.Format)
		slog.SetDefault(log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: json or text")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDatabase(ctx context.Context) (*database.DB, error) {
	if !cfg.Database.Enabled {
		return nil, fmt.Errorf("database is disabled, set DB_ENABLED=true or pass --db")
	}

	db, err := database.New(ctx, cfg.DatabaseConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
