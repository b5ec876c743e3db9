package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/auth"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/config"
)

// newTokenCommand mints a bearer token for local development.
func newTokenCommand(cfg *config.Config) *cobra.Command {
	var (
		userID string
		name   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(userID) == "" || strings.TrimSpace(name) == "" {
				return fmt.Errorf("--user and --name are required")
			}
			token, err := auth.IssueToken([]byte(cfg.JWTSecret), auth.NewClaims(userID, name, ttl))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
