// Package export writes form-login tokens to an env file consumed by
// external templating.
package export

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"apimonitor/internal/auth"
	"apimonitor/internal/config"
)

// Exporter collects DEVICE_<NAME>_TOKEN values for every form-login device
// and renders them to a sourceable env file. Best-effort: a device whose
// login fails is skipped, not fatal.
type Exporter struct {
	outputPath string
	timeout    time.Duration
	log        zerolog.Logger
}

// NewExporter creates a token exporter writing to the given path
func NewExporter(outputPath string, timeout time.Duration, log zerolog.Logger) *Exporter {
	return &Exporter{
		outputPath: outputPath,
		timeout:    timeout,
		log:        log,
	}
}

// Run fetches and writes tokens for all eligible devices. Devices using the
// OpenID-Connect extension manage their tokens through the token store and
// are not exported here.
func (e *Exporter) Run(devices []*config.Device) error {
	vars := map[string]string{}

	for _, device := range devices {
		if device.API.AuthType != config.AuthTokenFromAuth {
			continue
		}
		if device.API.AuthTypeExtension == config.ExtensionOpenIDConnect {
			continue
		}

		log := e.log.With().Str("device", device.Name).Logger()
		token, err := auth.FetchFormToken(device, e.clientFor(device), log)
		if err != nil {
			log.Error().Err(err).Msg("error getting auth token, skipping export")
			continue
		}
		vars[auth.TokenEnvVar(device.Name)] = token
		log.Info().Msg("collected auth token for export")
	}

	if len(vars) == 0 {
		e.log.Warn().Msg("no tokens to export")
		return nil
	}

	if dir := filepath.Dir(e.outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating token env directory: %w", err)
		}
	}
	if err := godotenv.Write(vars, e.outputPath); err != nil {
		return fmt.Errorf("writing token env file: %w", err)
	}

	e.log.Info().Int("tokens", len(vars)).Str("path", e.outputPath).Msg("exported device tokens")
	return nil
}

func (e *Exporter) clientFor(device *config.Device) *http.Client {
	transport := http.DefaultTransport
	if !device.VerifySSL() {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &http.Client{
		Timeout:   e.timeout,
		Transport: transport,
	}
}
