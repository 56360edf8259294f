// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"encoding/json"
	"strings"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// EventKind identifies the semantic type of a stream event.
type EventKind int

const (
	EventChunk EventKind = iota
	EventMessageID
	EventDone
	EventErr
)

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventChunk:
		return "chunk"
	case EventMessageID:
		return "message_id"
	case EventDone:
		return "done"
	case EventErr:
		return "error"
	default:
		return "unknown"
	}
}

// Completion is the metadata carried by a done event. Empty fields were
// absent from the payload.
type Completion struct {
	FinalText      string `json:"text"`
	MessageID      string `json:"message_id"`
	ModelName      string `json:"model_name"`
	ConversationID string `json:"conversation_id"`
}

// Event is one semantic stream event.
type Event struct {
	Kind EventKind

	// Text is the fragment of a chunk event
	Text string

	// MessageID is the backend message id of a message-id event
	MessageID string

	// Completion is set for done events
	Completion Completion

	// Err is set for error events
	Err error
}

// wire payloads
type chunkPayload struct {
	Chunk *string `json:"chunk"`
}

type messageIDPayload struct {
	MessageID string `json:"message_id"`
}

type errorPayload struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
}

// =============================================================================
// RECORD PARSING
// =============================================================================

// ParseRecord maps an SSE record to an event. It reports false for records
// that carry nothing to deliver (unknown event names, empty chunks).
//
// Unparseable payloads are never dropped: a message record becomes a raw
// text chunk, a message_id record uses the trimmed text as the id and a
// done record uses it as the final text.
func ParseRecord(rec Record) (Event, bool) {
	switch rec.Event {
	case DefaultEvent, "chunk":
		return parseChunk(rec)

	case "message_id":
		if !rec.HasData {
			return Event{}, false
		}
		var p messageIDPayload
		id := ""
		if err := json.Unmarshal(rec.Data, &p); err == nil {
			id = p.MessageID
		} else {
			id = string(bytes.TrimSpace(rec.Data))
		}
		if id == "" {
			return Event{}, false
		}
		return Event{Kind: EventMessageID, MessageID: id}, true

	case "done":
		ev := Event{Kind: EventDone}
		if rec.HasData && len(bytes.TrimSpace(rec.Data)) > 0 {
			if err := json.Unmarshal(rec.Data, &ev.Completion); err != nil {
				ev.Completion = Completion{FinalText: string(rec.Data)}
			}
		}
		return ev, true

	case "error":
		return Event{Kind: EventErr, Err: parseEventError(rec)}, true
	}

	return Event{}, false
}

func parseChunk(rec Record) (Event, bool) {
	if !rec.HasData {
		return Event{}, false
	}

	var p chunkPayload
	if err := json.Unmarshal(rec.Data, &p); err != nil {
		// Forward as raw text so no token is lost
		text := string(rec.Data)
		if text == "" {
			return Event{}, false
		}
		return Event{Kind: EventChunk, Text: text}, true
	}
	if p.Chunk == nil || *p.Chunk == "" {
		return Event{}, false
	}
	return Event{Kind: EventChunk, Text: *p.Chunk}, true
}

// parseEventError extracts a message from an error record. The payload is
// optional and may be JSON or plain text.
func parseEventError(rec Record) *EventError {
	data := bytes.TrimSpace(rec.Data)
	if len(data) == 0 {
		return &EventError{}
	}

	var p errorPayload
	if err := json.Unmarshal(data, &p); err == nil {
		switch {
		case p.Message != "":
			return &EventError{Message: p.Message}
		case p.Detail != "":
			return &EventError{Message: p.Detail}
		case len(p.Error) > 0:
			var s string
			if json.Unmarshal(p.Error, &s) == nil {
				return &EventError{Message: s}
			}
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(p.Error, &nested) == nil && nested.Message != "" {
				return &EventError{Message: nested.Message}
			}
		}
		return &EventError{}
	}
	return &EventError{Message: strings.TrimSpace(string(data))}
}
