package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"paygate/internal/config"
	"paygate/internal/repository"
	"paygate/internal/repository/sqlite"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "paygatectl",
		Short:         "Administrative tasks for the paygate service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("db", "", "sqlite database path (defaults to PAYGATE_DATABASE_PATH)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug output")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tierCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(rateLimitCmd())
	rootCmd.AddCommand(profilesCmd())

	return rootCmd
}

// app is the state shared by every subcommand.
type app struct {
	cfg    config.Config
	db     *sql.DB
	store  repository.Store
	logger *logrus.Logger
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if path, _ := cmd.Flags().GetString("db"); path != "" {
		cfg.Database.Path = path
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(cmd.Context(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &app{cfg: cfg, db: db, store: sqlite.NewStore(db), logger: logger}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func withApp(run func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd.Context(), cmd, a, args)
	}
}
