package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// StartRunRequest is the request body for POST /api/run.
// Omitted fields fall back to DefaultRunParams.
type StartRunRequest struct {
	SimTime  *int `json:"sim_time,omitempty"`
	MinGreen *int `json:"min_green,omitempty"`
	MaxGreen *int `json:"max_green,omitempty"`
}

// Params resolves the request against the defaults.
func (r StartRunRequest) Params() RunParams {
	p := DefaultRunParams()
	if r.SimTime != nil {
		p.SimTime = *r.SimTime
	}
	if r.MinGreen != nil {
		p.MinGreen = *r.MinGreen
	}
	if r.MaxGreen != nil {
		p.MaxGreen = *r.MaxGreen
	}
	return p
}

// StartRunResponse is the response for POST /api/run.
type StartRunResponse struct {
	RunID  uuid.UUID `json:"run_id"`
	Status RunStatus `json:"status"`
}

// StopRunResponse is the response for POST /api/stop/{run_id}.
type StopRunResponse struct {
	RunID  uuid.UUID `json:"run_id"`
	Status RunStatus `json:"status"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Database   string `json:"database"`
	ActiveRuns int    `json:"active_runs"`
	Uptime     int64  `json:"uptime_seconds"`
}

// CityListResponse is the response for GET /api/cities.
type CityListResponse struct {
	Count int           `json:"count"`
	Items []CityPayload `json:"items"`
}
