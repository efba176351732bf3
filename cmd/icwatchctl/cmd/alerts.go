package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/icwatch/icwatch/internal/alert"
	"github.com/icwatch/icwatch/pkg/protocol"
)

func newAlertsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show recent alerts (requires the embedded NATS server)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp protocol.AlertsResponse
			if err := apiGet("/api/v1/alerts?limit="+strconv.Itoa(limit), &resp); err != nil {
				return err
			}

			if len(resp.Alerts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No alerts.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tCODE\tTARGET\tHOST\tDETAIL")
			for _, a := range resp.Alerts {
				ev := alert.Event{Time: a.Time}
				fmt.Fprintf(w, "%s\t%s\t%s (%s)\t%s\t%s\n",
					ev.DateTime(), a.Code, a.Target.Name, a.Target.Kind, a.Hostname, a.Detail)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of alerts to show")
	return cmd
}
