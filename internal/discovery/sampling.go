package discovery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"apimonitor/internal/analyzer"
	"apimonitor/internal/auth"
	"apimonitor/internal/config"
	apierrors "apimonitor/pkg/errors"
)

// discoverFromSamples probes the device's configured endpoints and infers
// structure from live responses. A failing endpoint never aborts its
// siblings; each one ends up with an inline status.
func discoverFromSamples(ctx context.Context, device *config.Device, mgr *auth.Manager, log zerolog.Logger) *Structure {
	structure := &Structure{
		Endpoints: []Endpoint{},
		Samples:   map[string]interface{}{},
	}

	endpoints := device.SampleEndpoints()
	successful := 0
	failed := 0

	for _, ref := range endpoints {
		// Probing the login endpoint would mutate authentication state.
		if device.API.AuthType == config.AuthTokenFromAuth && device.API.AuthEndpoint == ref.Path {
			continue
		}

		method := strings.ToUpper(ref.Method)
		if method == "" {
			method = http.MethodGet
		}
		url := auth.JoinURL(device.API.BaseURL, ref.Path)
		log.Info().Str("method", method).Str("url", url).Msg("sampling endpoint")

		body, contentType, err := sample(ctx, mgr, method, url)
		if err != nil {
			failed++
			log.Error().Err(err).Str("url", url).Msg("request failed for endpoint")
			structure.Endpoints = append(structure.Endpoints, Endpoint{
				Path:   ref.Path,
				Method: method,
				Status: StatusError,
				Error:  err.Error(),
			})
			continue
		}

		value, err := analyzer.Decode(body)
		if err != nil {
			log.Warn().Str("url", url).Msg("response is not valid JSON")
			if contentType == "" {
				contentType = "unknown"
			}
			structure.Endpoints = append(structure.Endpoints, Endpoint{
				Path:        ref.Path,
				Method:      method,
				Status:      StatusNonJSON,
				ContentType: contentType,
			})
			continue
		}

		successful++
		metrics, tags := analyzer.Analyze(value, "")

		endpoint := Endpoint{
			Path:    ref.Path,
			Method:  method,
			Status:  StatusOK,
			Metrics: metrics,
			Tags:    tags,
		}
		if analyzer.DeeplyNested(value) {
			endpoint.NestedJSON = true
			if len(metrics) > 0 || len(tags) > 0 {
				endpoint.Projection = &Projection{
					Fields: metrics,
					Tags:   tags,
				}
			}
		}

		structure.Endpoints = append(structure.Endpoints, endpoint)
		structure.Samples[ref.Path] = value
	}

	structure.Summary = &Summary{
		TotalEndpoints:      len(endpoints),
		SuccessfulEndpoints: successful,
		FailedEndpoints:     failed,
	}

	return structure
}

// sample issues one bounded request and returns the raw body with its
// content type
func sample(ctx context.Context, mgr *auth.Manager, method, url string) ([]byte, string, error) {
	var reqBody io.Reader
	if method == http.MethodPost {
		// No sample payloads are configured; probe with an empty object.
		reqBody = bytes.NewReader([]byte("{}"))
	}

	resp, err := mgr.Do(ctx, method, url, reqBody)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, "", apierrors.NewAPIError(resp.StatusCode, "endpoint request failed", map[string]interface{}{
			"body": string(body),
		})
	}

	return body, resp.Header.Get("Content-Type"), nil
}
