package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfg config.Config

	cmd := &cobra.Command{
		Use:           "matetrip",
		Short:         "Collaborative trip-planning workspace engine",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	cmd.AddCommand(newServeCommand(&cfg))
	cmd.AddCommand(newMigrateCommand(&cfg))
	cmd.AddCommand(newTokenCommand(&cfg))
	return cmd
}
