package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"roombook/internal/auth"
)

var (
	tokenEmail string
	tokenName  string
	tokenTTL   time.Duration
)

func init() {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		Long: `Issue a development bearer token

Signs a token with auth.jwt_secret for local testing of the API. Production
clients get their tokens from the identity provider.
`,
		Args: cobra.NoArgs,
		RunE: token,
	}

	tokenCmd.Flags().StringVarP(&tokenEmail, "email", "e", "", "User address")
	tokenCmd.Flags().StringVarP(&tokenName, "name", "n", "", "Display name")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 8*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("email")

	RootCmd.AddCommand(tokenCmd)
}

func token(cmd *cobra.Command, args []string) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("set auth.jwt_secret in config")
	}
	m := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	signed, err := m.GenerateToken(tokenEmail, tokenName, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(signed)
	return nil
}
