package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sjperalta/khata-api/internal/config"
	"github.com/sjperalta/khata-api/internal/database"
	"github.com/sjperalta/khata-api/internal/replica"
	"github.com/sjperalta/khata-api/pkg/logger"
)

var version = "1.0.0"

// terminal is the state shared by every subcommand once the store is open
type terminal struct {
	cfg        *config.TerminalConfig
	db         *gorm.DB
	store      *replica.Store
	reconciler *replica.Reconciler
}

var app *terminal

var rootCmd = &cobra.Command{
	Use:   "khata-terminal",
	Short: "Offline point-of-sale terminal for the khata API",
	Long: `khata-terminal keeps a local copy of the catalog and khatas, records
sales while the server is unreachable and syncs them when it is back.

Configuration comes from the environment (or a .env file):
  TERMINAL_DB_PATH - local sqlite database (default ./terminal.db)
  SERVER_URL       - khata API base URL
  API_TOKEN        - bearer token carrying the shop's owner_id
  SYNC_INTERVAL    - interval for sync --watch (default 30s)`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: openTerminal,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeTerminal()
	},
}

// Execute runs the CLI and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeTerminal()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Local database path (overrides TERMINAL_DB_PATH)")
	rootCmd.PersistentFlags().String("server", "", "API base URL (overrides SERVER_URL)")
	rootCmd.PersistentFlags().String("token", "", "API token (overrides API_TOKEN)")
}

func openTerminal(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadTerminal()
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DBPath = v
	}
	if v, _ := cmd.Flags().GetString("server"); v != "" {
		cfg.ServerURL = v
	}
	if v, _ := cmd.Flags().GetString("token"); v != "" {
		cfg.APIToken = v
	}

	logger.SetupWithLevel(cfg.Environment, cfg.LogLevel)

	db, err := database.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	store := replica.NewStore(db)
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate terminal database: %w", err)
	}

	remote := replica.NewHTTPRemote(cfg.ServerURL, cfg.APIToken, cfg.HTTPTimeout)
	app = &terminal{
		cfg:        cfg,
		db:         db,
		store:      store,
		reconciler: replica.NewReconciler(store, remote),
	}
	logger.Debug("terminal store opened", "path", cfg.DBPath, "server", cfg.ServerURL)
	return nil
}

func closeTerminal() {
	if app == nil {
		return
	}
	if sqlDB, err := app.db.DB(); err == nil {
		sqlDB.Close()
	}
	app = nil
}
