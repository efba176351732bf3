package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/icwatch/icwatch/internal/alert"
	"github.com/icwatch/icwatch/internal/keepalive"
)

func newPingCmd() *cobra.Command {
	var (
		key     string
		name    string
		message string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ping <ic://default:key@host[:port]>",
		Short: "Send one heartbeat to a heartbeat server",
		Long: `Sends a single heartbeat and prints the server's reply. The server starts
tracking the given name, so a test name that never pings again will be
reported offline after num periods.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				name = alert.Hostname()
			}
			client, err := keepalive.NewClient(keepalive.ClientConfig{
				URL:     args[0],
				Key:     key,
				Name:    name,
				Timeout: timeout,
			}, zerolog.Nop())
			if err != nil {
				return err
			}

			start := time.Now()
			pong, err := client.Ping(context.Background(), message)
			if err != nil {
				return fmt.Errorf("%s error: %w", keepalive.Classify(err), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s replied %q in %s\n",
				pong.Name, pong.Msg, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "shared key (overrides the one in the URL)")
	cmd.Flags().StringVar(&name, "name", "", "heartbeat name (default: hostname)")
	cmd.Flags().StringVar(&message, "message", keepalive.DefaultMessage, "heartbeat message")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "dial and exchange timeout")
	return cmd
}
