package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/knikodemQ/Appointment-Booking-System/internal/store/postgres"
)

func migrateCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}

			log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
			db, err := postgres.Open(cmd.Context(), cfg.DatabaseURL, postgres.PoolConfig{MaxOpenConns: 1, Logger: log})
			if err != nil {
				args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
				log.Error("database connection failed", args...)
				return err
			}
			defer func() {
				if err := postgres.Close(db, log); err != nil {
					log.Warn("database close failed", slog.Any("err", err))
				}
			}()

			from, to, err := postgres.Migrate(cmd.Context(), db, log)
			if err != nil {
				log.Error("migration failed", slog.Any("err", err), slog.Uint64("from_version", uint64(from)))
				return err
			}
			log.Info("migrations complete", slog.Uint64("from_version", uint64(from)), slog.Uint64("to_version", uint64(to)))
			if from == to {
				fmt.Fprintf(cmd.OutOrStdout(), "schema already at version %d\n", to)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema migrated from version %d to %d\n", from, to)
			return nil
		},
	}
}
