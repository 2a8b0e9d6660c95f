package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/leego972/sitewarden/internal/pkg/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply all pending database migrations and exit.

The server can also migrate on start with database.migrate_on_start.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := postgres.Migrate(cfg.Database.URL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s database is up to date\n", color.GreenString("✓"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
