package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/kindrid-api/internal/models"
	"github.com/noah-isme/kindrid-api/internal/service"
	"github.com/noah-isme/kindrid-api/pkg/config"
)

func newTokenCmd() *cobra.Command {
	var (
		role    string
		subject string
		email   string
		name    string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			auth := service.NewAuthService(nil, service.AuthConfig{
				AccessTokenSecret: cfg.JWT.Secret,
				AccessTokenExpiry: cfg.JWT.Expiration,
				Issuer:            cfg.JWT.Issuer,
			})
			issued, err := auth.IssueToken(subject, models.UserRole(strings.ToUpper(role)), email, name)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(issued)
		},
	}
	cmd.Flags().StringVar(&role, "role", string(models.RoleTeacher), "role claim (ADMIN, TEACHER or PARENT)")
	cmd.Flags().StringVar(&subject, "subject", "", "user id; generated when empty")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&name, "name", "", "full name claim")
	return cmd
}
