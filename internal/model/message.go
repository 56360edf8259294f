// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a thread.
//
// A user message is immutable once created. An assistant message accepts
// appended content only while IsStreaming is true and is frozen afterwards.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	// Content
	Content string `json:"content"`

	// Transient stream state (not persisted)
	IsSkeleton  bool `json:"-"` // true until the first content token arrives
	IsStreaming bool `json:"-"` // true from send until the stream closes or errors
}

// NewUserMessage creates a user message with a locally generated ID.
func NewUserMessage(content string) Message {
	return Message{
		ID:        newMessageID(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewAssistantPlaceholder creates the empty assistant message inserted
// before any network activity so the UI can show a loading state.
func NewAssistantPlaceholder() Message {
	return Message{
		ID:          newMessageID(),
		Role:        RoleAssistant,
		CreatedAt:   time.Now(),
		IsSkeleton:  true,
		IsStreaming: true,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AppendContent appends a fragment to a streaming assistant message and
// clears the skeleton flag. It reports false (and changes nothing) when
// the message is not an assistant message or is no longer streaming.
func (m *Message) AppendContent(fragment string) bool {
	if m.Role != RoleAssistant || !m.IsStreaming {
		return false
	}
	m.Content += fragment
	m.IsSkeleton = false
	return true
}

// SetFinalContent replaces the content of a pending assistant message and
// clears both transient flags. Used by the single-shot reply path.
func (m *Message) SetFinalContent(content string) bool {
	if m.Role != RoleAssistant || !m.IsStreaming {
		return false
	}
	m.Content = content
	m.IsSkeleton = false
	m.IsStreaming = false
	return true
}

// EndStream freezes the message: no further content is accepted.
func (m *Message) EndStream() {
	m.IsStreaming = false
	m.IsSkeleton = false
}

// IsPending returns true while the message is waiting for content.
func (m Message) IsPending() bool {
	return m.IsSkeleton && m.IsStreaming
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// newMessageID creates a local message ID for optimistic entries.
func newMessageID() string {
	return "msg_" + uuid.NewString()
}
