// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the line-based front-end and the non-interactive
// commands of tenantchat.
//
// The REPL is used when stdout is not a terminal or when --plain is given.
// It reads input with liner (history is kept in the config directory),
// runs each turn through the orchestrator and prints the assistant text as
// it arrives by diffing store snapshots. Ctrl+C while a reply is being
// generated stops it; at the prompt it exits.
//
// # REPL Commands
//
//   - /new: start a new conversation
//   - /model [key]: show or select the model
//   - /threads: list conversations in this session
//   - /switch N: continue conversation N from /threads
//   - /export [md|json|html]: write the current conversation to a file
//   - /quit, exit: leave
package cli
