package main

import (
	"fmt"
	"time"

	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/identity"
	"github.com/spf13/cobra"
)

var (
	tokenUser string
	tokenPlan string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token for a user",
	Long: `Issue a bearer token signed with jwt.secret_key.

Tokens are normally issued by the account service; this command is meant
for operators and local development.

Examples:
  sitewarden token --user user-42 --plan pro --ttl 24h`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		plan := domain.PlanTier(tokenPlan)
		if !plan.IsValid() {
			return fmt.Errorf("unknown plan %q", tokenPlan)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		issuer := identity.NewValidator(identity.Config{
			SecretKey: cfg.JWT.SecretKey,
			Issuer:    cfg.JWT.Issuer,
		})
		token, err := issuer.IssueToken(identity.Principal{UserID: tokenUser, Plan: plan}, tokenTTL)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (token subject)")
	tokenCmd.Flags().StringVar(&tokenPlan, "plan", string(domain.PlanFree), "plan tier: free, starter, pro or enterprise")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}
