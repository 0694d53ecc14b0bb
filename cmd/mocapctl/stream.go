package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/danmuck/mocapctl/internal/config"
	"github.com/danmuck/mocapctl/internal/monitor"
	"github.com/danmuck/mocapctl/internal/observability"
	"github.com/danmuck/mocapctl/internal/record"
	"github.com/danmuck/mocapctl/internal/stream"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type streamOptions struct {
	configPath  string
	host        string
	port        int
	channels    []string
	frames      int
	file        string
	header      bool
	strict      bool
	timeout     time.Duration
	metricsAddr string
}

func newStreamCmd() *cobra.Command {
	opts := &streamOptions{}
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Record data frames to a delimited text file",
		Long: `stream connects to the data service, requests the configured channels
and writes one row per data frame. A header row naming every column is written
whenever the service sends a new node list. Use --file - for stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveStreamConfig(opts, cmd.Flags())
			if err != nil {
				return err
			}
			return runStream(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	def := config.Default()
	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "config.toml path; flags override file values")
	f.StringVar(&opts.host, "host", def.Host, "data service host")
	f.IntVar(&opts.port, "port", def.Port, "data service port")
	f.StringSliceVar(&opts.channels, "channels", def.Channels, "channel names to request")
	f.IntVar(&opts.frames, "frames", def.Frames, "stop after N data frames, 0 streams until interrupted")
	f.StringVar(&opts.file, "file", def.Output.File, "output path, - for stdout")
	f.BoolVar(&opts.header, "header", def.Output.Header, "write a header row when node names arrive")
	f.BoolVar(&opts.strict, "strict", def.StrictLengths, "fail on records whose length differs from the channel dimension")
	f.DurationVar(&opts.timeout, "timeout", def.ReadTimeout, "watchdog window per read")
	f.StringVar(&opts.metricsAddr, "metrics-addr", def.MetricsAddr, "serve /metrics and /stream on this address")
	return cmd
}

// resolveStreamConfig loads the config file, if any, then applies the flags
// the user actually set.
func resolveStreamConfig(opts *streamOptions, flags *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if path := strings.TrimSpace(opts.configPath); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if flags.Changed("host") {
		cfg.Host = opts.host
	}
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	if flags.Changed("channels") {
		cfg.Channels = opts.channels
	}
	if flags.Changed("frames") {
		cfg.Frames = opts.frames
	}
	if flags.Changed("file") {
		cfg.Output.File = opts.file
	}
	if flags.Changed("header") {
		cfg.Output.Header = opts.header
	}
	if flags.Changed("strict") {
		cfg.StrictLengths = opts.strict
	}
	if flags.Changed("timeout") {
		cfg.ReadTimeout = opts.timeout
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runStream(ctx context.Context, stdout io.Writer, cfg config.Config) error {
	log := observability.ComponentLogger("mocapctl")
	mask, err := cfg.Mask()
	if err != nil {
		return err
	}
	opts := cfg.RecordOptions()
	if err := opts.Validate(); err != nil {
		return err
	}

	var mon *monitor.Server
	if cfg.MetricsAddr != "" {
		mon = monitor.New("mocapctl", cfg.MetricsAddr, nil)
		monCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := mon.Serve(monCtx); err != nil {
				log.Warn().Err(err).Msg("monitor stopped")
			}
		}()
	}

	s, err := stream.Dial(ctx, cfg.StreamConfig())
	if err != nil {
		return err
	}
	if mon != nil {
		mon.SetSource(s)
	}

	// The output is only truncated once the service has answered.
	out := stdout
	if path := cfg.Output.File; path != "-" {
		f, err := os.Create(path)
		if err != nil {
			_ = s.Close()
			return fmt.Errorf("open output: %w", err)
		}
		defer f.Close()
		out = f
	}
	rec, err := record.New(out, mask, opts)
	if err != nil {
		_ = s.Close()
		return err
	}
	handle := rec.Handle
	if mon != nil {
		handle = func(f stream.Frame) error {
			_ = mon.Observe(f)
			return rec.Handle(f)
		}
	}

	if err := s.RequestChannels(ctx, mask); err != nil {
		_ = s.Close()
		return err
	}

	start := time.Now()
	err = s.Run(ctx, handle)
	if ferr := rec.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	log.Info().
		Str("session", s.ID()).
		Int("rows", rec.Rows()).
		Int("headers", rec.Headers()).
		Dur("elapsed", time.Since(start)).
		Msg("stream finished")

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
