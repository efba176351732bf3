package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/icwatch/icwatch/internal/alert"
	"github.com/icwatch/icwatch/pkg/protocol"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show icwatchd status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp protocol.StatusResponse
			if err := apiGet("/api/v1/status", &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:       %s\n", resp.Status)
			fmt.Fprintf(out, "Name:         %s\n", resp.Name)
			fmt.Fprintf(out, "Provider:     %s\n", resp.Provider)
			fmt.Fprintf(out, "Uptime:       %s\n", resp.Uptime)
			fmt.Fprintf(out, "Started At:   %s\n", resp.StartedAt.Format(alert.DateTimeLayout))
			fmt.Fprintf(out, "NATS Running: %v\n", resp.NATSRunning)
			if resp.ServerRunning {
				fmt.Fprintf(out, "Server:       %s (%d clients, %d offline)\n", resp.ServerListen, resp.ClientCount, resp.ExpiredCount)
			} else {
				fmt.Fprintln(out, "Server:       disabled")
			}
			if resp.ClientTarget != "" {
				fmt.Fprintf(out, "Reporting To: %s\n", resp.ClientTarget)
			}
			integrations := "none"
			if len(resp.Integrations) > 0 {
				integrations = strings.Join(resp.Integrations, ", ")
			}
			fmt.Fprintf(out, "Alerts:       %s\n", integrations)
			return nil
		},
	}
}
