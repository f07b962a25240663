package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"apimonitor/internal/config"
	"apimonitor/internal/device"
	"apimonitor/internal/export"
	"apimonitor/internal/tokenstore"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading settings: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(settings.App.LogLevel)

	devices, invalid, err := config.LoadDevices(settings.Paths.DevicesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load device configuration")
	}
	for _, verr := range invalid {
		logger.Error().Err(verr).Msg("skipping invalid device configuration")
	}
	logger.Info().Int("devices", len(devices)).Msg("loaded device configuration")

	store, err := tokenstore.Open(settings.Paths.TokenStore)
	if err != nil {
		// Discovery still works without persisted tokens; refreshable devices
		// will re-authenticate every cycle.
		logger.Error().Err(err).Msg("failed to open token store, continuing without persistence")
		store = nil
	} else {
		defer store.Close()
	}

	exporter := export.NewExporter(settings.Paths.TokenEnv, settings.HTTP.Timeout, logger)
	if err := exporter.Run(devices); err != nil {
		logger.Error().Err(err).Msg("token export failed")
	}

	service := device.NewService(store, settings.HTTP.Timeout, settings.App.WorkerCount, logger)
	results, summary := service.ProcessAll(context.Background(), devices)

	output := struct {
		Summary device.Summary  `json:"summary"`
		Results []device.Result `json:"results"`
	}{
		Summary: summary,
		Results: results,
	}
	encoded, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to encode results")
	}
	fmt.Println(string(encoded))
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(parsed)
}
