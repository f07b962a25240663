package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"apimonitor/internal/auth"
	"apimonitor/internal/config"
	apierrors "apimonitor/pkg/errors"
)

// discoverFromSpec fetches and interprets a Swagger/OpenAPI document. Any
// error it returns causes the orchestrator to fall back to sampling.
func discoverFromSpec(ctx context.Context, device *config.Device, mgr *auth.Manager, log zerolog.Logger) (*Structure, error) {
	resp, err := mgr.Do(ctx, http.MethodGet, device.API.SwaggerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching specification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("specification fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading specification: %w", err)
	}

	var spec map[string]interface{}
	if err := json.Unmarshal(body, &spec); err != nil {
		return nil, fmt.Errorf("parsing specification: %w", err)
	}

	// Malformed-but-parsable documents are still used; validation problems
	// are only logged.
	for _, warning := range validateSpec(spec) {
		log.Warn().Msg("specification validation: " + warning)
	}

	paths, ok := spec["paths"].(map[string]interface{})
	if !ok || len(paths) == 0 {
		return nil, apierrors.NewDiscoveryError(device.Name, "specification", "document has no usable paths")
	}

	structure := &Structure{
		Endpoints:  []Endpoint{},
		DataModels: dataModels(spec),
	}

	pathKeys := make([]string, 0, len(paths))
	for path := range paths {
		pathKeys = append(pathKeys, path)
	}
	sort.Strings(pathKeys)

	for _, path := range pathKeys {
		pathItem, ok := paths[path].(map[string]interface{})
		if !ok {
			continue
		}
		for _, method := range []string{"get", "post"} {
			operation, ok := pathItem[method].(map[string]interface{})
			if !ok {
				continue
			}
			structure.Endpoints = append(structure.Endpoints, specEndpoint(path, method, operation))
		}
	}

	log.Info().Int("endpoints", len(structure.Endpoints)).Msg("discovered API structure from specification")
	return structure, nil
}

// specEndpoint builds an Endpoint from one path+operation entry
func specEndpoint(path, method string, operation map[string]interface{}) Endpoint {
	endpoint := Endpoint{
		Path:   path,
		Method: strings.ToUpper(method),
	}

	if summary, ok := operation["summary"].(string); ok {
		endpoint.Description = summary
	}
	if tags, ok := operation["tags"].([]interface{}); ok {
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				endpoint.OperationTags = append(endpoint.OperationTags, s)
			}
		}
	}
	if params, ok := operation["parameters"].([]interface{}); ok {
		endpoint.Parameters = params
	}
	endpoint.ResponseSchema = successSchema(operation)

	return endpoint
}

// successSchema extracts the schema of the first 2xx response, if any
func successSchema(operation map[string]interface{}) interface{} {
	responses, ok := operation["responses"].(map[string]interface{})
	if !ok {
		return nil
	}

	statuses := make([]string, 0, len(responses))
	for status := range responses {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)

	for _, status := range statuses {
		if !strings.HasPrefix(status, "2") {
			continue
		}
		response, ok := responses[status].(map[string]interface{})
		if !ok {
			continue
		}
		if schema, ok := response["schema"]; ok {
			return schema
		}
	}
	return nil
}

// dataModels reads schema definitions from the Swagger definitions section,
// falling back to the OpenAPI 3 components.schemas section
func dataModels(spec map[string]interface{}) map[string]interface{} {
	if definitions, ok := spec["definitions"].(map[string]interface{}); ok && len(definitions) > 0 {
		return definitions
	}
	if components, ok := spec["components"].(map[string]interface{}); ok {
		if schemas, ok := components["schemas"].(map[string]interface{}); ok && len(schemas) > 0 {
			return schemas
		}
	}
	return nil
}

// validateSpec performs a lightweight structural check of the document.
// Full OpenAPI semantic validation is out of scope.
func validateSpec(spec map[string]interface{}) []string {
	var warnings []string

	_, hasSwagger := spec["swagger"]
	_, hasOpenAPI := spec["openapi"]
	if !hasSwagger && !hasOpenAPI {
		warnings = append(warnings, "document declares neither swagger nor openapi version")
	}
	if _, ok := spec["info"]; !ok {
		warnings = append(warnings, "document has no info section")
	}
	if _, ok := spec["paths"]; !ok {
		warnings = append(warnings, "document has no paths section")
	}

	return warnings
}
