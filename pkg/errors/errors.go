package errors

import "fmt"

// APIError represents a failed HTTP exchange with a device
type APIError struct {
	StatusCode int
	Message    string
	Details    map[string]interface{}
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s (status code: %d)", e.Message, e.StatusCode)
}

// NewAPIError creates a new APIError
func NewAPIError(statusCode int, message string, details map[string]interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
		Details:    details,
	}
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (field: %s, value: %v)", e.Message, e.Field, e.Value)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// AuthError represents an authentication setup failure for a single device.
// Fatal to that device's session only, never to the fleet.
type AuthError struct {
	Device  string
	Stage   string
	Message string
}

// Error implements the error interface
func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %s (stage: %s)", e.Device, e.Message, e.Stage)
}

// NewAuthError creates a new AuthError
func NewAuthError(device, stage, message string) *AuthError {
	return &AuthError{
		Device:  device,
		Stage:   stage,
		Message: message,
	}
}

// DiscoveryError represents a discovery strategy failure. The orchestrator
// treats it as a signal to fall back to sampling, not to abort the device.
type DiscoveryError struct {
	Device   string
	Strategy string
	Message  string
}

// Error implements the error interface
func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for %s via %s: %s", e.Device, e.Strategy, e.Message)
}

// NewDiscoveryError creates a new DiscoveryError
func NewDiscoveryError(device, strategy, message string) *DiscoveryError {
	return &DiscoveryError{
		Device:   device,
		Strategy: strategy,
		Message:  message,
	}
}
