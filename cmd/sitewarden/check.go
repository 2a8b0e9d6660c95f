package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/leego972/sitewarden/internal/app"
	"github.com/leego972/sitewarden/internal/domain"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <site-id>",
	Short: "Check one site now",
	Long: `Run the full check pipeline for one site, exactly as the scheduler would:
the result is recorded and incidents are opened or resolved.

Examples:
  sitewarden check 7f1c9a52-2d7e-4a43-9c1e-5b0c7f3c8a11`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// The scheduler is not needed for a one-off check.
		cfg.Scheduler.Enabled = false

		application, err := app.New(cfg)
		if err != nil {
			return fmt.Errorf("create app: %w", err)
		}
		defer application.Close()

		site, hc, err := application.CheckSite(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printCheck(cmd.OutOrStdout(), site, hc)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func printCheck(w io.Writer, site *domain.MonitoredSite, hc *domain.HealthCheck) {
	bold := color.New(color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "%s %s\n", bold(site.Name), gray(site.URL))
	fmt.Fprintf(w, "  status:   %s\n", statusColor(hc.Status)(string(hc.Status)))
	if hc.HTTPStatusCode != nil {
		fmt.Fprintf(w, "  http:     %d\n", *hc.HTTPStatusCode)
	}
	fmt.Fprintf(w, "  response: %dms\n", hc.ResponseTimeMs)
	if hc.SSLExpiresAt != nil {
		fmt.Fprintf(w, "  tls:      expires %s (%s)\n", hc.SSLExpiresAt.Format("2006-01-02"), hc.SSLIssuer)
	}
	if hc.ErrorType != "" {
		fmt.Fprintf(w, "  error:    %s %s\n", color.RedString(string(hc.ErrorType)), hc.ErrorMessage)
	}
	if !hc.IsHealthy() {
		fmt.Fprintf(w, "  failures: %d (incident at %d)\n", site.ConsecutiveFailures, site.Alerting.Threshold())
	}
}

func statusColor(s domain.HealthStatus) func(format string, a ...any) string {
	switch s {
	case domain.HealthStatusHealthy:
		return color.GreenString
	case domain.HealthStatusDegraded:
		return color.YellowString
	default:
		return color.RedString
	}
}
