package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/qaduni/status/internal/middleware"
)

var (
	tokenOwner    string
	tokenUsername string
	tokenTTL      time.Duration
)

func init() {
	tokenCmd.Flags().StringVar(&tokenOwner, "owner", "", "owner uuid (a new one is generated when empty)")
	tokenCmd.Flags().StringVar(&tokenUsername, "username", "", "username recorded in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API token for an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET must be set")
		}

		owner := uuid.New()
		if tokenOwner != "" {
			var err error
			if owner, err = uuid.Parse(tokenOwner); err != nil {
				return fmt.Errorf("invalid owner: %w", err)
			}
		}

		token, err := middleware.GenerateToken(owner, tokenUsername, cfg.JWTSecret, tokenTTL)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "owner: %s\n", owner)
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
