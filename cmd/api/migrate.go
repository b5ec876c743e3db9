package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/config"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
)

func newMigrateCommand(cfg *config.Config) *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations, or revert the latest ones with --down",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := store.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer db.Close()

			if down > 0 {
				if err := store.RevertMigrations(ctx, db, cfg.MigrationsDir, down); err != nil {
					return err
				}
				log.Printf("reverted %d migration(s)", down)
				return nil
			}
			if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
				return err
			}
			log.Println("migrations up to date")
			return nil
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "number of migrations to revert")
	return cmd
}
