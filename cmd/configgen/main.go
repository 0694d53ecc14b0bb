package main

import (
	"flag"
	"os"

	"github.com/danmuck/mocapctl/internal/config"
	"github.com/danmuck/mocapctl/internal/logging"
	"github.com/rs/zerolog/log"
)

const defaultPath = "cmd/mocapctl/config.toml"

func main() {
	logging.ConfigureRuntime()
	output := flag.String("output", "", "output path for config template (default "+defaultPath+")")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (default "+defaultPath+")")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath
		}
		cfg, err := config.Load(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("config invalid")
			os.Exit(1)
		}
		log.Info().Str("path", path).Str("addr", cfg.Address()).Strs("channels", cfg.Channels).Msg("config valid")
		return
	}

	target := *output
	if target == "" {
		target = defaultPath
	}
	if err := config.WriteTemplate(target, *force); err != nil {
		log.Error().Err(err).Str("path", target).Msg("write template")
		os.Exit(1)
	}
	log.Info().Str("path", target).Msg("wrote config template")
}
