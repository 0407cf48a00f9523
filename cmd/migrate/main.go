package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/one-folder-app/onefolder-api/internal/config"
	"github.com/one-folder-app/onefolder-api/internal/store"
)

var (
	migrationsDir string
	logger        *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the OneFolder database schema",
	Long: `Applies, rolls back and inspects the goose migrations in the
migrations directory. Connection settings come from DB_URL, .env files or
CONFIG_FILE, exactly like the API server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := os.Getenv("LOG_LEVEL")
		if level == "" {
			level = "info"
		}
		var err error
		logger, err = config.NewLogger(level)
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

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd.Context(), store.MigrateUp)
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd.Context(), store.MigrateDown)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state of every migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd.Context(), store.MigrateStatus)
	},
}

var createCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create an empty SQL migration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configured, err := config.MigrationsDirectory()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		dir := resolveDir(migrationsDir, configured)
		if err := store.CreateMigration(dir, args[0]); err != nil {
			return err
		}
		logger.Info("migration created", zap.String("name", args[0]), zap.String("dir", dir))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "dir", "", "migrations directory (overrides MIGRATIONS_DIR)")
	rootCmd.AddCommand(upCmd, downCmd, statusCmd, createCmd)
}

func runMigration(ctx context.Context, command store.MigrationCommand) error {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	dir := resolveDir(migrationsDir, cfg.MigrationsDir)

	dbCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.DBConnTimeoutSecs)*time.Second)
	defer cancel()
	st, err := store.New(dbCtx, cfg.DBURL, store.Options{
		MaxConns:               2,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer st.Close()

	return store.Migrate(ctx, st.Pool(), dir, command, logger)
}

// resolveDir prefers the --dir flag over the configured directory.
func resolveDir(flagDir, configured string) string {
	if flagDir != "" {
		return flagDir
	}
	return configured
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
