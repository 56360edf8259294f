// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error variables for common gateway errors.
var (
	// ErrNotConfigured indicates the client has no base URL.
	ErrNotConfigured = errors.New("gateway base URL not configured")

	// ErrUnauthorized indicates the API key or tenant was rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates the conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrEmptyConversationID indicates the backend returned no id.
	ErrEmptyConversationID = errors.New("backend returned empty conversation id")
)

// APIError represents an error response from the chat backend.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
}

// apiErrorResponse is the error body returned by the backend.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// handleErrorResponse converts HTTP error responses to appropriate Go errors.
func handleErrorResponse(statusCode int, body []byte) error {
	apiErr := &APIError{Status: statusCode, Message: string(body)}

	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Code = parsed.Error.Code
		apiErr.Message = parsed.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
	default:
		return apiErr
	}
}

// IsRetryable reports whether a later attempt of the same call may
// succeed: rate limiting and 5xx responses. The gateway never retries on
// its own; callers decide.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}
	return false
}
