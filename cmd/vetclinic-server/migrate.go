package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"vetclinic/backend/internal/store/postgres"
	"vetclinic/backend/migrations"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := postgres.Close(db); err != nil {
					log.Warn("database close failed", slog.Any("err", err))
				}
			}()

			applied, err := postgres.Migrate(cmd.Context(), db, migrations.FS, log)
			if err != nil {
				log.Error("migration failed", slog.Any("err", err))
				return err
			}
			log.Info("migrations complete", slog.Int("applied", len(applied)))
			return nil
		},
	}
}
