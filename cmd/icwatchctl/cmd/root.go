package cmd

import (
	"github.com/spf13/cobra"

	"github.com/icwatch/icwatch/pkg/sockpath"
)

var (
	socketPath string

	// Version is set by the main package via ldflags.
	Version = "dev"
)

// NewRootCmd creates the root icwatchctl command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "icwatchctl",
		Short:        "icwatch CLI: inspect icwatchd and send test heartbeats",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", sockpath.DefaultSocketPath(), "icwatchd Unix socket path")

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newClientsCmd())
	rootCmd.AddCommand(newAlertsCmd())
	rootCmd.AddCommand(newPingCmd())
	rootCmd.AddCommand(newSecretsCmd())

	return rootCmd
}
