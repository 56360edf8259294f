// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProvisionalPrefix marks thread IDs generated locally before the backend
// has issued an identity.
const ProvisionalPrefix = "local-"

// DefaultTitle is shown for threads that have no title yet.
const DefaultTitle = "New Conversation"

// =============================================================================
// THREAD TYPE
// =============================================================================

// Thread holds one conversation: its identity, title and ordered messages.
// Message order is insertion order, which is also display order.
type Thread struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Messages    []Message `json:"messages"`
	UpdatedAt   time.Time `json:"updated_at"`
	Model       string    `json:"model,omitempty"`
	Provisional bool      `json:"provisional,omitempty"`
}

// NewProvisionalThread creates a thread with a local ID. It has no backend
// identity until migrated with Threads.Migrate.
func NewProvisionalThread(modelKey string) Thread {
	return Thread{
		ID:          ProvisionalPrefix + uuid.NewString(),
		Messages:    []Message{},
		UpdatedAt:   time.Now(),
		Model:       modelKey,
		Provisional: true,
	}
}

// IsProvisionalID reports whether id was generated locally.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// GetTitle returns the thread title or a default.
func (t Thread) GetTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return DefaultTitle
}

// LastMessage returns the most recent message, if any.
func (t Thread) LastMessage() (Message, bool) {
	if len(t.Messages) == 0 {
		return Message{}, false
	}
	return t.Messages[len(t.Messages)-1], true
}

// FindMessage returns the message with the given ID.
func (t Thread) FindMessage(id string) (Message, bool) {
	for _, m := range t.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// Clone creates a deep copy of the thread.
func (t Thread) Clone() Thread {
	clone := t
	clone.Messages = make([]Message, len(t.Messages))
	copy(clone.Messages, t.Messages)
	return clone
}

// =============================================================================
// THREAD COLLECTION (COPY-ON-WRITE)
// =============================================================================

// Threads is the thread collection, most recently active first.
//
// Methods never modify the receiver; they return the next collection.
// Threads that a method does not touch are shared between the old and the
// new collection, so callers must treat elements as read-only.
type Threads []Thread

// Index returns the position of the thread with id, or -1.
func (ts Threads) Index(id string) int {
	for i := range ts {
		if ts[i].ID == id {
			return i
		}
	}
	return -1
}

// Find returns the thread with id.
func (ts Threads) Find(id string) (Thread, bool) {
	if i := ts.Index(id); i >= 0 {
		return ts[i], true
	}
	return Thread{}, false
}

// FindMessage returns a message of a thread.
func (ts Threads) FindMessage(threadID, messageID string) (Message, bool) {
	t, ok := ts.Find(threadID)
	if !ok {
		return Message{}, false
	}
	return t.FindMessage(messageID)
}

// Prepend returns a collection with t at the head. An existing entry with
// the same ID is dropped so an ID never appears twice.
func (ts Threads) Prepend(t Thread) Threads {
	next := make(Threads, 0, len(ts)+1)
	next = append(next, t)
	for _, existing := range ts {
		if existing.ID != t.ID {
			next = append(next, existing)
		}
	}
	return next
}

// Migrate replaces the thread oldID with a copy carrying newID and title,
// keeping its messages, and moves it to the head. The old entry is removed
// in the same step so both IDs never coexist. Unknown oldID is a no-op.
func (ts Threads) Migrate(oldID, newID, title string) Threads {
	i := ts.Index(oldID)
	if i < 0 {
		return ts
	}
	migrated := ts[i].Clone()
	migrated.ID = newID
	if title != "" {
		migrated.Title = title
	}
	migrated.Provisional = false
	migrated.UpdatedAt = time.Now()

	next := make(Threads, 0, len(ts))
	next = append(next, migrated)
	for j, existing := range ts {
		if j == i || existing.ID == newID {
			continue
		}
		next = append(next, existing)
	}
	return next
}

// AppendMessage returns a collection where msg is appended to threadID.
func (ts Threads) AppendMessage(threadID string, msg Message) Threads {
	return ts.updateThread(threadID, func(t *Thread) {
		t.Messages = append(t.Messages, msg)
	})
}

// UpdateMessage applies fn to a copy of the message and returns the
// resulting collection. Missing thread or message is a no-op.
func (ts Threads) UpdateMessage(threadID, messageID string, fn func(*Message)) Threads {
	i := ts.Index(threadID)
	if i < 0 {
		return ts
	}
	if _, ok := ts[i].FindMessage(messageID); !ok {
		return ts
	}
	return ts.updateThread(threadID, func(t *Thread) {
		for j := range t.Messages {
			if t.Messages[j].ID == messageID {
				fn(&t.Messages[j])
				return
			}
		}
	})
}

// Clone creates a deep copy of the collection.
func (ts Threads) Clone() Threads {
	if ts == nil {
		return nil
	}
	clone := make(Threads, len(ts))
	for i := range ts {
		clone[i] = ts[i].Clone()
	}
	return clone
}

// updateThread copies the collection and the messages of threadID before
// handing the copy to fn.
func (ts Threads) updateThread(threadID string, fn func(*Thread)) Threads {
	i := ts.Index(threadID)
	if i < 0 {
		return ts
	}
	next := make(Threads, len(ts))
	copy(next, ts)
	t := ts[i].Clone()
	fn(&t)
	t.UpdatedAt = time.Now()
	next[i] = t
	return next
}
