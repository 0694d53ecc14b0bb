package main

import (
	"time"

	"github.com/danmuck/mocapctl/internal/mockservice"
	"github.com/spf13/cobra"
)

func newMockCmd() *cobra.Command {
	cfg := mockservice.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Run a local stand-in for the data service",
		Long: `mock listens like the data service would, answers the channel request
with a node list and then streams synthetic frames sized to the requested
channels.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mockservice.New(cfg).ListenAndServe(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	f.StringSliceVar(&cfg.Nodes, "nodes", cfg.Nodes, "node names to report")
	f.IntVar(&cfg.Frames, "frames", cfg.Frames, "data frames per client, 0 streams until the client leaves")
	f.DurationVar(&cfg.Interval, "interval", cfg.Interval, "delay between data frames")
	f.IntVar(&cfg.MetadataEvery, "metadata-every", 0, "resend the node list every N frames")
	f.BoolVar(&cfg.Stall, "stall", false, "go silent after the last frame instead of disconnecting")
	f.IntVar(&cfg.LengthSkew, "length-skew", 0, "added to each record's declared length")
	f.DurationVar(&cfg.RequestTimeout, "request-timeout", 5*time.Second, "how long to wait for the channel request")
	return cmd
}
