package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
)

// NewTokenCmd issues a bearer token for a registered user, handy for hosting from curl.
func NewTokenCmd(configPath *string) *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			provider, err := identityProvider(cfg)
			if err != nil {
				return err
			}
			token, err := provider.Issue(userID, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to embed as the subject")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func identityProvider(cfg config.Config) (*auth.JWTProvider, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret not configured")
	}
	return auth.NewJWTProvider(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour)), nil
}
