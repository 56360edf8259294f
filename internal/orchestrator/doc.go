// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator runs one chat turn: it inserts the user's message
// and an assistant placeholder into the thread store, bootstraps a backend
// conversation when the thread is still local, streams or fetches the reply
// and persists the final text.
//
// # State Machine
//
//	idle -> sending-user -> creating-conversation -> streaming-assistant -> finalizing -> done
//	                    \________________________/\_____________________/
//	                       (skipped when not needed)
//
// error is reachable from every non-idle state. A new send starts from
// idle, done or error. Abort forces idle from any state.
//
// # Concurrency
//
// Send blocks for the whole turn and is meant to run on its own goroutine
// (a tea.Cmd in the TUI). Abort, State and ActiveThread may be called from
// any goroutine. At most one send is in flight; a second Send while busy
// returns a rejected Outcome without touching the store.
//
// Every store write made by a send carries the generation it started
// with. Abort bumps the generation, so events that race an abort are
// dropped instead of mutating the thread.
//
// # Errors
//
// Send never returns an error. Failures are reported to the Notifier and
// summarized in the returned Outcome.
package orchestrator
