// Package models defines request and response types for the management API.
// All types are JSON-serializable; request types carry gin binding tags.
package models

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse represents a simple status response.
type StatusResponse struct {
	Status string `json:"status"`
}
