package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/icwatch/icwatch/pkg/protocol"
)

func newClientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List servers that have sent heartbeats",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp protocol.ClientsResponse
			if err := apiGet("/api/v1/clients", &resp); err != nil {
				return err
			}

			if len(resp.Clients) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No heartbeats received yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATE\tTICKS\tLAST HEARTBEAT\tAGO")
			for _, c := range resp.Clients {
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
					c.Name, c.State, c.Ticks, c.MaxTicks,
					c.LastSeen.Local().Format("15:04:05"),
					time.Since(c.LastSeen).Truncate(time.Second),
				)
			}
			return w.Flush()
		},
	}
}
