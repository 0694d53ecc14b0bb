package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/mocapctl/internal/protocol/channel"
	"github.com/danmuck/mocapctl/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
host = "10.0.0.7"
channels = ["Lq", "c", "dt"]
frames = 500
strict_lengths = true
read_timeout = "750ms"

[output]
separator = ";"
precision = 4
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Address() != "10.0.0.7:32076" {
		t.Fatalf("unexpected address: %q", cfg.Address())
	}
	if cfg.Frames != 500 || !cfg.StrictLengths {
		t.Fatalf("unexpected frames/strict: %d %v", cfg.Frames, cfg.StrictLengths)
	}
	if cfg.ReadTimeout != 750*time.Millisecond {
		t.Fatalf("unexpected read timeout: %v", cfg.ReadTimeout)
	}
	if cfg.ConnectTimeout != 5*time.Second {
		t.Fatalf("connect timeout should keep default: %v", cfg.ConnectTimeout)
	}
	mask, err := cfg.Mask()
	if err != nil {
		t.Fatalf("mask: %v", err)
	}
	if want := channel.MaskOf(channel.Lq, channel.C, channel.Dt); mask != want {
		t.Fatalf("mask got=%#x want=%#x", uint32(mask), uint32(want))
	}
	if cfg.Output.Separator != ";" || cfg.Output.Precision != 4 {
		t.Fatalf("unexpected output: %+v", cfg.Output)
	}
	if !cfg.Output.Header || cfg.Output.Newline != "\n" || cfg.Output.File != "out.csv" {
		t.Fatalf("output defaults lost: %+v", cfg.Output)
	}

	sc := cfg.StreamConfig()
	if sc.Address != "10.0.0.7:32076" || !sc.Session.StrictLengths || sc.Session.Limits.MaxLen != 1<<16 {
		t.Fatalf("unexpected stream config: %+v", sc)
	}
	opts := cfg.RecordOptions()
	if opts.Frames != 500 || opts.Separator != ";" {
		t.Fatalf("unexpected record options: %+v", opts)
	}
}

func TestLoadExampleConfig(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load(filepath.Join("..", "..", "cmd", "mocapctl", "ex.config.toml"))
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	if cfg.MetricsAddr != "127.0.0.1:9102" || cfg.Output.File != "capture.csv" {
		t.Fatalf("unexpected example config: %+v", cfg)
	}
}

func TestLoadRejects(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", `hots = "x"`, "unknown key"},
		{"bad duration", `read_timeout = "soon"`, "read_timeout"},
		{"zero duration", `read_timeout = "0s"`, "read_timeout"},
		{"bad channel", `channels = ["Lq", "bogus"]`, "bogus"},
		{"bad port", `port = 70000`, "port"},
		{"empty separator", "[output]\nseparator = \"\"", "separator"},
		{"negative frames", `frames = -1`, "frames"},
		{"frame too large", `max_frame_len = 70000`, "max_frame_len"},
		{"zero frame len", `max_frame_len = 0`, "max_frame_len"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadChannelErrorWrapsSentinel(t *testing.T) {
	testlog.Start(t)
	_, err := Load(writeConfig(t, `channels = ["LQ"]`))
	if !errors.Is(err, channel.ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite template: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("template does not load back to defaults:\n got=%+v\nwant=%+v", cfg, Default())
	}
}
