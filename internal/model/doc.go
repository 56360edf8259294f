// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat threads and messages.
//
// This package defines the domain types shared by the send pipeline: the
// thread collection held by the store, the messages inside each thread and
// the registry mapping UI model keys to backend models.
//
// # Key Types
//
//   - Thread: ordered list of messages plus title, model and identity state
//   - Threads: copy-on-write collection, most recently active first
//   - Message: single user or assistant message with transient stream flags
//   - Registry: model key -> backend id and streaming capability
//   - Role: message role enumeration (user, assistant)
//
// # Usage
//
// Threads are never mutated in place. Every helper returns the next
// collection so it can be used inside a store update function:
//
//	next := prev.Prepend(model.NewProvisionalThread("lite"))
//	next = next.AppendMessage(id, model.NewUserMessage("Hello!"))
//
// Resolve a model key before sending:
//
//	spec := model.DefaultRegistry().Lookup("lite")
//	if spec.Streaming { ... }
package model
