package config

import (
	"github.com/danmuck/mocapctl/internal/protocol/frame"
	"github.com/danmuck/mocapctl/internal/protocol/session"
	"github.com/danmuck/mocapctl/internal/record"
	"github.com/danmuck/mocapctl/internal/stream"
)

func (c Config) StreamConfig() stream.Config {
	return stream.Config{
		Address: c.Address(),
		Session: session.Config{
			ConnectTimeout:   c.ConnectTimeout,
			HandshakeTimeout: c.HandshakeTimeout,
			ReadTimeout:      c.ReadTimeout,
			WriteTimeout:     c.WriteTimeout,
			Limits:           frame.Limits{MinLen: 1, MaxLen: c.MaxFrameLen},
			StrictLengths:    c.StrictLengths,
		},
	}
}

func (c Config) RecordOptions() record.Options {
	return record.Options{
		Header:    c.Output.Header,
		Separator: c.Output.Separator,
		Newline:   c.Output.Newline,
		Precision: c.Output.Precision,
		Frames:    c.Frames,
	}
}
