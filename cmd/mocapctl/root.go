package main

import (
	"github.com/danmuck/mocapctl/internal/logging"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:   "mocapctl",
		Short: "Stream motion-capture measurements from a data service",
		Long: `mocapctl connects to a motion-capture data service, requests a set of
channels and records every data frame as a delimited text row.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("log-level") {
				return nil
			}
			return logging.SetLevel(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "trace, debug, info, warn, error or off; overrides "+logging.EnvLogLevel)
	root.AddCommand(newStreamCmd())
	root.AddCommand(newChannelsCmd())
	root.AddCommand(newMockCmd())
	return root
}
