package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"apimonitor/pkg/errors"
)

// Supported auth_type values
const (
	AuthNone          = "none"
	AuthBasic         = "basic"
	AuthBearer        = "bearer"
	AuthTokenFromAuth = "token_from_auth"
)

// ExtensionOpenIDConnect selects the OpenID-Connect sub-flow of token_from_auth
const ExtensionOpenIDConnect = "openid_connect"

// GlobalConfig holds read-only defaults shared by every device
type GlobalConfig struct {
	RefreshInterval int   `yaml:"refresh_interval"` // seconds, consumed by schedulers
	VerifySSL       *bool `yaml:"verify_ssl"`
}

// EndpointRef identifies one endpoint to sample
type EndpointRef struct {
	Path   string `yaml:"path"`
	Method string `yaml:"method"`
}

// DeviceAPI describes how to reach and authenticate to a device's API
type DeviceAPI struct {
	BaseURL           string            `yaml:"base_url"`
	AuthType          string            `yaml:"auth_type"`
	AuthTypeExtension string            `yaml:"auth_type_extension"`
	SwaggerURL        string            `yaml:"swagger_url"`
	Username          string            `yaml:"username"`
	Password          string            `yaml:"password"`
	Token             string            `yaml:"token"`
	AuthEndpoint      string            `yaml:"auth_endpoint"`
	AuthMethod        string            `yaml:"auth_method"`
	AuthPayload       map[string]string `yaml:"auth_payload"`
	TokenPath         string            `yaml:"token_path"`
	OpenIDClientID    string            `yaml:"openid_client_id"`
	OpenIDScope       string            `yaml:"openid_scope"`
	VerifySSL         *bool             `yaml:"verify_ssl"`
	Endpoints         []EndpointRef     `yaml:"endpoints"`
}

// Device is the immutable per-run input for one monitored device. The engine
// only ever writes the two auth annotations, at most once per session.
type Device struct {
	Name   string        `yaml:"name"`
	API    DeviceAPI     `yaml:"api"`
	Global *GlobalConfig `yaml:"-"`

	AuthFailed bool   `yaml:"-"`
	AuthError  string `yaml:"-"`
}

// Fleet is the top-level shape of the devices file
type Fleet struct {
	Devices []*Device    `yaml:"devices"`
	Global  GlobalConfig `yaml:"global"`
}

// MarkAuthFailed records an authentication failure annotation. The first
// failure of a session wins.
func (d *Device) MarkAuthFailed(detail string) {
	if d.AuthFailed {
		return
	}
	d.AuthFailed = true
	d.AuthError = detail
}

// VerifySSL resolves the SSL-verification flag, device over global, default true
func (d *Device) VerifySSL() bool {
	if d.API.VerifySSL != nil {
		return *d.API.VerifySSL
	}
	if d.Global != nil && d.Global.VerifySSL != nil {
		return *d.Global.VerifySSL
	}
	return true
}

// SampleEndpoints returns the configured endpoint list, defaulting to a single
// root GET probe when none is configured
func (d *Device) SampleEndpoints() []EndpointRef {
	if len(d.API.Endpoints) > 0 {
		return d.API.Endpoints
	}
	return []EndpointRef{{Path: "", Method: "GET"}}
}

// LoadDevices loads the device fleet from a YAML file. Devices that fail
// validation are dropped and reported in the second return value; they never
// abort their siblings.
func LoadDevices(path string) ([]*Device, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading devices file: %w", err)
	}

	var fleet Fleet
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		return nil, nil, fmt.Errorf("parsing devices file: %w", err)
	}

	var devices []*Device
	var invalid []error
	for _, device := range fleet.Devices {
		if device == nil {
			continue
		}
		device.Global = &fleet.Global
		if err := validateDevice(device); err != nil {
			invalid = append(invalid, err)
			continue
		}
		devices = append(devices, device)
	}

	return devices, invalid, nil
}

// DeviceNames returns the set of configured device names, used by consumers
// that clean up output for removed devices
func DeviceNames(devices []*Device) map[string]bool {
	names := make(map[string]bool, len(devices))
	for _, d := range devices {
		names[d.Name] = true
	}
	return names
}

// validateDevice performs the single load-time validation pass
func validateDevice(d *Device) error {
	if d.Name == "" {
		return errors.NewValidationError("name", d.Name, "device name is required")
	}
	if d.API.BaseURL == "" {
		return errors.NewValidationError("api.base_url", d.API.BaseURL, fmt.Sprintf("base_url is required for device %s", d.Name))
	}

	authType := d.API.AuthType
	if authType == "" {
		authType = AuthNone
		d.API.AuthType = authType
	}
	switch authType {
	case AuthNone:
	case AuthBasic, AuthBearer:
	case AuthTokenFromAuth:
		if d.API.AuthEndpoint == "" {
			return errors.NewValidationError("api.auth_endpoint", d.API.AuthEndpoint,
				fmt.Sprintf("auth_endpoint is required for token_from_auth on device %s", d.Name))
		}
	default:
		return errors.NewValidationError("api.auth_type", authType,
			fmt.Sprintf("unknown auth_type for device %s", d.Name))
	}

	for i, ep := range d.API.Endpoints {
		switch ep.Method {
		case "", "GET", "POST":
		default:
			return errors.NewValidationError(fmt.Sprintf("api.endpoints[%d].method", i), ep.Method,
				fmt.Sprintf("unsupported sampling method for device %s", d.Name))
		}
	}

	return nil
}
