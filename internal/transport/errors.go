// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error variables for stream failures.
var (
	// ErrNotConfigured indicates the client has no base URL.
	ErrNotConfigured = errors.New("stream endpoint not configured")

	// ErrRecordTooLarge indicates an SSE record exceeded MaxRecordSize.
	ErrRecordTooLarge = fmt.Errorf("sse record exceeds %d bytes", MaxRecordSize)
)

// StatusError is returned when the stream endpoint answers with a
// non-success status. Detail is the response body, or the status text when
// the body is empty.
type StatusError struct {
	Status int
	Detail string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("stream request failed (%d): %s", e.Status, e.Detail)
}

// newStatusError builds a StatusError from a response body.
func newStatusError(status int, body []byte) *StatusError {
	detail := string(body)
	if detail == "" {
		detail = http.StatusText(status)
	}
	return &StatusError{Status: status, Detail: detail}
}

// EventError is the cause carried by an error event.
type EventError struct {
	Message string
}

// Error implements the error interface.
func (e *EventError) Error() string {
	if e.Message == "" {
		return "stream reported an error"
	}
	return "stream reported an error: " + e.Message
}

// IsAbort reports whether err is the result of the caller cancelling the
// stream, as opposed to a server or network failure.
func IsAbort(err error) bool {
	return errors.Is(err, context.Canceled)
}
