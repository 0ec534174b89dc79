// Package dto contains request/response data transfer objects for the API layer
package dto

// APIResponse is the envelope every JSON endpoint returns. Exactly one of
// Data and Error is set depending on Success.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

// ErrorDetail carries a machine-readable error code plus optional
// field-level details (validation messages, provider errors).
type ErrorDetail struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}
