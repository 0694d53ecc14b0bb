package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Template renders Default as a config.toml.
func Template() ([]byte, error) {
	return Marshal(Default())
}

// Marshal renders cfg in the config.toml layout Load reads back.
func Marshal(cfg Config) ([]byte, error) {
	raw := fileConfig{
		Host:             cfg.Host,
		Port:             cfg.Port,
		Channels:         cfg.Channels,
		Frames:           cfg.Frames,
		StrictLengths:    cfg.StrictLengths,
		ConnectTimeout:   cfg.ConnectTimeout.String(),
		HandshakeTimeout: cfg.HandshakeTimeout.String(),
		ReadTimeout:      cfg.ReadTimeout.String(),
		WriteTimeout:     cfg.WriteTimeout.String(),
		MaxFrameLen:      cfg.MaxFrameLen,
		MetricsAddr:      cfg.MetricsAddr,
		Output: fileOutput{
			File:      cfg.Output.File,
			Header:    cfg.Output.Header,
			Separator: cfg.Output.Separator,
			Newline:   cfg.Output.Newline,
			Precision: cfg.Output.Precision,
		},
	}
	out, err := toml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("render mocapctl config: %w", err)
	}
	return out, nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, template, 0o600)
}
