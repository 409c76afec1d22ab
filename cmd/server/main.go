package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"afreeca-dl/internal/config"
	"afreeca-dl/internal/monitor"
	"afreeca-dl/internal/registry"
	"afreeca-dl/internal/server"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	configManager := config.NewManager()
	cfg, err := configManager.Load(os.Getenv(config.EnvPrefix + "_CONFIG_DIR"))
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading configuration")
	}
	logger := configManager.GetLogger()

	reg := registry.NewRegistry(logger)
	afreeca, err := reg.RegisterDefaultExtractors(cfg, monitor.Default())
	if err != nil {
		logger.Fatal().Err(err).Msg("Error registering extractors")
	}
	if afreeca != nil {
		defer afreeca.Close()
	}

	mon := monitor.NewMonitor(monitor.Default(), logger)
	srv, err := server.NewServer(cfg, reg, mon, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Error creating server")
	}

	if err := srv.Run(); err != nil {
		logger.Fatal().Err(err).Msg("Error running server")
	}
}
