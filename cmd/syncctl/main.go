// Command syncctl runs one-off syncs, write-backs and EMR imports.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-sheet-sync/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-sheet-sync/internal/config"
	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

type rootOptions struct {
	dryRun   bool
	tabsFile string
	logLevel string
}

// session is the per-invocation wiring shared by subcommands.
type session struct {
	cfg    *appconfig.Config
	logger *logging.Logger
	stores *bootstrap.Stores
	close  func()
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts rootOptions
	cmd := &cobra.Command{
		Use:           "syncctl",
		Short:         "Run clinic sheet syncs and EMR imports from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "Use in-memory stores; nothing is persisted")
	cmd.PersistentFlags().StringVar(&opts.tabsFile, "tabs", "", "Tab list file (default: SYNC_TABS_FILE)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (default: LOG_LEVEL)")

	cmd.AddCommand(newSyncCmd(&opts), newWriteBackCmd(&opts), newImportCmd(&opts), newStatusCmd(&opts))
	return cmd
}

func openSession(ctx context.Context, cmd *cobra.Command, opts *rootOptions) (*session, error) {
	cfg := appconfig.Load()
	if opts.tabsFile != "" {
		cfg.TabsFile = opts.tabsFile
	}
	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger := logging.NewWithFormat(cmd.ErrOrStderr(), level, "text")

	if opts.dryRun {
		logger.Info("dry run, using in-memory stores")
		return &session{cfg: cfg, logger: logger, stores: bootstrap.BuildMemoryStores(), close: func() {}}, nil
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required (or pass --dry-run)")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &session{cfg: cfg, logger: logger, stores: bootstrap.BuildStores(pool), close: pool.Close}, nil
}
