package device_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apimonitor/internal/config"
	"apimonitor/internal/device"
	"apimonitor/internal/discovery"
)

const testTimeout = 5 * time.Second

func TestSessionRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"uptime": 99, "state": "up"}`)
	}))
	defer srv.Close()

	dev := &config.Device{
		Name:   "gateway",
		API:    config.DeviceAPI{BaseURL: srv.URL},
		Global: &config.GlobalConfig{},
	}
	session := device.NewSession(dev, nil, testTimeout, zerolog.Nop())
	result := session.Run(context.Background())

	assert.Equal(t, "gateway", result.Device)
	assert.False(t, result.AuthFailed)
	require.NotNil(t, result.Structure)
	require.Len(t, result.Structure.Endpoints, 1)
	assert.Equal(t, discovery.StatusOK, result.Structure.Endpoints[0].Status)
}

func TestProcessAllMixedFleet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": 1}`)
	}))
	defer srv.Close()

	devices := []*config.Device{
		{
			Name:   "healthy",
			API:    config.DeviceAPI{BaseURL: srv.URL},
			Global: &config.GlobalConfig{},
		},
		{
			Name: "broken-auth",
			API: config.DeviceAPI{
				BaseURL:  srv.URL,
				AuthType: config.AuthBearer,
				Token:    "${MISSING_FLEET_TOKEN}",
			},
			Global: &config.GlobalConfig{},
		},
	}

	service := device.NewService(nil, testTimeout, 2, zerolog.Nop())
	results, summary := service.ProcessAll(context.Background(), devices)

	require.Len(t, results, 2)
	// Results preserve input order regardless of worker scheduling.
	assert.Equal(t, "healthy", results[0].Device)
	assert.Equal(t, "broken-auth", results[1].Device)

	assert.False(t, results[0].AuthFailed)
	assert.True(t, results[1].AuthFailed)
	assert.NotEmpty(t, results[1].AuthError)
	// The failed device is still handled: it carries an empty structure.
	require.NotNil(t, results[1].Structure)
	assert.Empty(t, results[1].Structure.Endpoints)

	assert.Equal(t, 2, summary.TotalDevices)
	assert.Equal(t, 1, summary.SuccessfulDevices)
	assert.Equal(t, 1, summary.FailedDevices)
}

func TestProcessAllEmptyFleet(t *testing.T) {
	service := device.NewService(nil, testTimeout, 3, zerolog.Nop())
	results, summary := service.ProcessAll(context.Background(), nil)

	assert.Empty(t, results)
	assert.Equal(t, 0, summary.TotalDevices)
}
