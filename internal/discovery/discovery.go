// Package discovery infers a device's queryable API surface, either from a
// published OpenAPI document or by sampling live responses.
package discovery

import (
	"context"

	"github.com/rs/zerolog"

	"apimonitor/internal/analyzer"
	"apimonitor/internal/auth"
	"apimonitor/internal/config"
)

// Endpoint status values
const (
	StatusOK      = "ok"
	StatusNonJSON = "non-json"
	StatusError   = "error"
)

// Projection carries the path-addressed field/tag lists attached to deeply
// nested endpoints for structured extraction downstream
type Projection struct {
	Fields []analyzer.Metric `json:"fields"`
	Tags   []analyzer.Tag    `json:"tags"`
}

// Endpoint describes one discovered endpoint. Specification-driven discovery
// fills the operation fields; sampling fills status, metrics, and tags.
type Endpoint struct {
	Path   string `json:"path"`
	Method string `json:"method"`

	// Specification-driven fields
	Description    string        `json:"description,omitempty"`
	OperationTags  []string      `json:"operation_tags,omitempty"`
	Parameters     []interface{} `json:"parameters,omitempty"`
	ResponseSchema interface{}   `json:"response_schema,omitempty"`

	// Sampling-driven fields
	Status      string            `json:"status,omitempty"`
	Metrics     []analyzer.Metric `json:"metrics,omitempty"`
	Tags        []analyzer.Tag    `json:"tags,omitempty"`
	NestedJSON  bool              `json:"nested_json,omitempty"`
	Projection  *Projection       `json:"projection,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Summary counts sampled endpoints by outcome
type Summary struct {
	TotalEndpoints      int `json:"total_endpoints"`
	SuccessfulEndpoints int `json:"successful_endpoints"`
	FailedEndpoints     int `json:"failed_endpoints"`
}

// Structure is the discovery output handed to configuration generators
type Structure struct {
	Endpoints  []Endpoint             `json:"endpoints"`
	DataModels map[string]interface{} `json:"data_models,omitempty"`
	Samples    map[string]interface{} `json:"samples,omitempty"`
	Summary    *Summary               `json:"summary,omitempty"`
	AuthFailed bool                   `json:"auth_failed,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// Discover produces the structural description for one device. A device whose
// credential setup failed is never probed; it yields an empty structure
// carrying the auth failure. Specification-driven discovery falls back to
// sampling on any failure rather than failing the device.
func Discover(ctx context.Context, device *config.Device, mgr *auth.Manager, log zerolog.Logger) *Structure {
	log = log.With().Str("device", device.Name).Logger()

	if failed, detail := mgr.Failed(); failed {
		log.Warn().Msg("skipping discovery due to authentication failure")
		return &Structure{
			Endpoints:  []Endpoint{},
			AuthFailed: true,
			Error:      detail,
		}
	}

	if device.API.SwaggerURL != "" {
		structure, err := discoverFromSpec(ctx, device, mgr, log)
		if err == nil {
			return structure
		}
		log.Error().Err(err).Msg("specification discovery failed, falling back to sampling")
	}

	return discoverFromSamples(ctx, device, mgr, log)
}
