package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/icwatch/icwatch/internal/server"
)

var version = "dev"

func main() {
	var (
		cfgFile string
		check   bool
		debug   bool
	)

	rootCmd := &cobra.Command{
		Use:   "icwatchd",
		Short: "icwatch daemon: heartbeat failure detector and spot interruption alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if debug {
				level = zerolog.DebugLevel
			}
			logger := zerolog.New(
				zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
			).Level(level).With().Timestamp().Logger()

			cfg, err := server.LoadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if check {
				fmt.Println("config ok")
				return nil
			}

			d := server.NewDaemon(cfg, logger)
			return d.Run()
		},
	}

	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.Flags().BoolVar(&check, "check", false, "validate the config and exit")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "log every heartbeat")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
