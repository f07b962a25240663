package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apimonitor/internal/config"
)

func writeDevicesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDevices(t *testing.T) {
	path := writeDevicesFile(t, `
global:
  refresh_interval: 3600
  verify_ssl: false

devices:
  - name: router
    api:
      base_url: https://router.local
      auth_type: basic
      username: admin
      password: ${ROUTER_PASSWORD}
  - name: sensor
    api:
      base_url: http://sensor.local
      verify_ssl: true
      endpoints:
        - path: /metrics
          method: GET
`)

	devices, invalid, err := config.LoadDevices(path)
	require.NoError(t, err)
	assert.Empty(t, invalid)
	require.Len(t, devices, 2)

	router := devices[0]
	assert.Equal(t, "router", router.Name)
	assert.Equal(t, config.AuthBasic, router.API.AuthType)
	require.NotNil(t, router.Global)
	assert.Equal(t, 3600, router.Global.RefreshInterval)
	// Global verify_ssl applies when the device does not override it.
	assert.False(t, router.VerifySSL())

	sensor := devices[1]
	assert.True(t, sensor.VerifySSL())
	require.Len(t, sensor.SampleEndpoints(), 1)
	assert.Equal(t, "/metrics", sensor.SampleEndpoints()[0].Path)
}

func TestLoadDevicesDefaults(t *testing.T) {
	path := writeDevicesFile(t, `
devices:
  - name: bare
    api:
      base_url: http://bare.local
`)

	devices, invalid, err := config.LoadDevices(path)
	require.NoError(t, err)
	assert.Empty(t, invalid)
	require.Len(t, devices, 1)

	bare := devices[0]
	assert.Equal(t, config.AuthNone, bare.API.AuthType)
	assert.True(t, bare.VerifySSL())

	endpoints := bare.SampleEndpoints()
	require.Len(t, endpoints, 1)
	assert.Equal(t, "", endpoints[0].Path)
	assert.Equal(t, "GET", endpoints[0].Method)
}

func TestLoadDevicesValidation(t *testing.T) {
	path := writeDevicesFile(t, `
devices:
  - name: ""
    api:
      base_url: http://nameless.local
  - name: no-base
    api:
      auth_type: basic
  - name: token-no-endpoint
    api:
      base_url: http://t.local
      auth_type: token_from_auth
  - name: bad-auth
    api:
      base_url: http://b.local
      auth_type: kerberos
  - name: bad-method
    api:
      base_url: http://m.local
      endpoints:
        - path: /x
          method: PUT
  - name: valid
    api:
      base_url: http://ok.local
`)

	devices, invalid, err := config.LoadDevices(path)
	require.NoError(t, err)
	assert.Len(t, invalid, 5)
	require.Len(t, devices, 1)
	assert.Equal(t, "valid", devices[0].Name)
}

func TestLoadDevicesMissingFile(t *testing.T) {
	_, _, err := config.LoadDevices(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestMarkAuthFailedWritesOnce(t *testing.T) {
	device := &config.Device{Name: "d"}

	device.MarkAuthFailed("first failure")
	device.MarkAuthFailed("second failure")

	assert.True(t, device.AuthFailed)
	assert.Equal(t, "first failure", device.AuthError)
}

func TestDeviceNames(t *testing.T) {
	devices := []*config.Device{{Name: "a"}, {Name: "b"}}
	names := config.DeviceNames(devices)

	assert.True(t, names["a"])
	assert.True(t, names["b"])
	assert.False(t, names["c"])
}
