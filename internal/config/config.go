package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/mocapctl/internal/protocol/channel"
	"github.com/danmuck/mocapctl/internal/protocol/frame"
)

type OutputConfig struct {
	File      string
	Header    bool
	Separator string
	Newline   string
	Precision int
}

// Config is the resolved mocapctl runtime configuration.
type Config struct {
	Host             string
	Port             int
	Channels         []string
	Frames           int
	StrictLengths    bool
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxFrameLen      uint32
	MetricsAddr      string
	Output           OutputConfig
}

func Default() Config {
	return Config{
		Host:             "127.0.0.1",
		Port:             32076,
		Channels:         []string{"Lq", "c"},
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		ReadTimeout:      time.Second,
		WriteTimeout:     5 * time.Second,
		MaxFrameLen:      frame.DefaultLimits().MaxLen,
		Output: OutputConfig{
			File:      "out.csv",
			Header:    true,
			Separator: ",",
			Newline:   "\n",
			Precision: 3,
		},
	}
}

// fileConfig is the config.toml key mapping. Durations are Go duration
// strings ("1s", "250ms").
type fileConfig struct {
	Host             string     `toml:"host" comment:"data service host"`
	Port             int        `toml:"port" comment:"data service port"`
	Channels         []string   `toml:"channels" comment:"channel names to request, case sensitive"`
	Frames           int        `toml:"frames" comment:"stop after this many data frames, 0 streams forever"`
	StrictLengths    bool       `toml:"strict_lengths" comment:"fail when a record length differs from the channel dimension"`
	ConnectTimeout   string     `toml:"connect_timeout"`
	HandshakeTimeout string     `toml:"handshake_timeout"`
	ReadTimeout      string     `toml:"read_timeout" comment:"watchdog window, extended before every read"`
	WriteTimeout     string     `toml:"write_timeout"`
	MaxFrameLen      uint32     `toml:"max_frame_len"`
	MetricsAddr      string     `toml:"metrics_addr" comment:"serve /metrics and /stream here when set"`
	Output           fileOutput `toml:"output"`
}

type fileOutput struct {
	File      string `toml:"file"`
	Header    bool   `toml:"header"`
	Separator string `toml:"separator"`
	Newline   string `toml:"newline"`
	Precision int    `toml:"precision"`
}

// Load overlays the keys present in path onto Default and validates the
// result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load mocapctl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load mocapctl config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("channels") {
		cfg.Channels = raw.Channels
	}
	if meta.IsDefined("frames") {
		cfg.Frames = raw.Frames
	}
	if meta.IsDefined("strict_lengths") {
		cfg.StrictLengths = raw.StrictLengths
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.HandshakeTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("load mocapctl config: %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("max_frame_len") {
		cfg.MaxFrameLen = raw.MaxFrameLen
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("output", "file") {
		cfg.Output.File = strings.TrimSpace(raw.Output.File)
	}
	if meta.IsDefined("output", "header") {
		cfg.Output.Header = raw.Output.Header
	}
	if meta.IsDefined("output", "separator") {
		cfg.Output.Separator = raw.Output.Separator
	}
	if meta.IsDefined("output", "newline") {
		cfg.Output.Newline = raw.Output.Newline
	}
	if meta.IsDefined("output", "precision") {
		cfg.Output.Precision = raw.Output.Precision
	}

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("load mocapctl config: %w", err)
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return fmt.Errorf("config missing host")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("config port out of range: %d", cfg.Port)
	}
	if _, err := cfg.Mask(); err != nil {
		return err
	}
	if cfg.Frames < 0 {
		return fmt.Errorf("config frames must be >= 0")
	}
	for name, d := range map[string]time.Duration{
		"connect_timeout":   cfg.ConnectTimeout,
		"handshake_timeout": cfg.HandshakeTimeout,
		"read_timeout":      cfg.ReadTimeout,
		"write_timeout":     cfg.WriteTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("config %s must be > 0", name)
		}
	}
	if limit := frame.DefaultLimits().MaxLen; cfg.MaxFrameLen < 1 || cfg.MaxFrameLen > limit {
		return fmt.Errorf("config max_frame_len must be in [1, %d]: %d", limit, cfg.MaxFrameLen)
	}
	if cfg.Output.Separator == "" || cfg.Output.Newline == "" {
		return fmt.Errorf("config output separator and newline are required")
	}
	if cfg.Output.Precision < 0 {
		return fmt.Errorf("config output precision must be >= 0")
	}
	return nil
}

// Address is host:port for dialing.
func (c Config) Address() string {
	return net.JoinHostPort(strings.TrimSpace(c.Host), strconv.Itoa(c.Port))
}

// Mask resolves Channels against the channel table.
func (c Config) Mask() (channel.Mask, error) {
	m, err := channel.ParseMask(c.Channels)
	if err != nil {
		return 0, fmt.Errorf("config channels: %w", err)
	}
	return m, nil
}
