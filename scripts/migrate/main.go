package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mahaj/chat-delivery/pkg/config"
	"github.com/mahaj/chat-delivery/pkg/db"
	"github.com/mahaj/chat-delivery/pkg/logging"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the mailbox schema for the configured backend",
		Long: `Creates the keyspace, tables and indexes used by the mailbox.
The backend and its connection settings come from the same environment
as the services (MAILBOX_BACKEND, SCYLLA_HOSTS, SCYLLA_KEYSPACE, DATABASE_URL).`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.New("migrate", cfg.IsDevelopment())
			if reset && !cfg.IsDevelopment() {
				return fmt.Errorf("--reset is only allowed in development")
			}
			return migrate(cmd.Context(), cfg, reset, logger)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drop existing mailbox tables first (development only)")
	return cmd
}

func migrate(ctx context.Context, cfg *config.Config, reset bool, logger zerolog.Logger) error {
	switch cfg.MailboxBackend {
	case "scylla":
		if reset {
			logger.Warn().Str("keyspace", cfg.Keyspace).Msg("dropping mailbox tables")
			if err := db.DropScylla(cfg.ScyllaHosts, cfg.Keyspace); err != nil {
				return err
			}
		}
		if err := db.MigrateScylla(cfg.ScyllaHosts, cfg.Keyspace); err != nil {
			return err
		}
		logger.Info().Strs("hosts", cfg.ScyllaHosts).Str("keyspace", cfg.Keyspace).Msg("scylla schema applied")

	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if reset {
			logger.Warn().Msg("dropping mailbox tables")
			if err := db.DropPostgres(ctx, pool); err != nil {
				return err
			}
		}
		if err := db.MigratePostgres(ctx, pool); err != nil {
			return err
		}
		logger.Info().Msg("postgres schema applied")

	case "memory":
		logger.Info().Msg("memory backend has no schema")
	}
	return nil
}
