// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the full-screen chat view.
//
// The view never mutates threads itself. It renders snapshots of the
// shared store and hands user input to the orchestrator; everything the
// orchestrator does reaches the view as a store change, a state change or
// a notification, each delivered through the Bridge as a Bubble Tea
// message.
//
// # Keys
//
//   - Enter: send the input
//   - Esc: stop the reply being generated
//   - Ctrl+N: start a new conversation
//   - Ctrl+Up / Ctrl+Down: switch conversation
//   - Tab: cycle the model
//   - Ctrl+C: quit
package chat
