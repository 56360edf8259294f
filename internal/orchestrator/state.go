// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"errors"
	"fmt"
)

// =============================================================================
// STATE TYPE
// =============================================================================

// State is the phase of the current send.
type State int

const (
	StateIdle State = iota
	StateSendingUser
	StateCreatingConversation
	StateStreamingAssistant
	StateFinalizing
	StateDone
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSendingUser:
		return "sending-user"
	case StateCreatingConversation:
		return "creating-conversation"
	case StateStreamingAssistant:
		return "streaming-assistant"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// IsActive returns true while a send is in progress.
func (s State) IsActive() bool {
	switch s {
	case StateSendingUser, StateCreatingConversation, StateStreamingAssistant, StateFinalizing:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for the states a send ends in.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateError
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// ErrIllegalTransition is returned by advance for moves not in the table.
var ErrIllegalTransition = errors.New("illegal state transition")

// transitions lists the legal moves. Abort is handled separately and may
// force idle from any state.
var transitions = map[State][]State{
	StateIdle:                 {StateSendingUser},
	StateSendingUser:          {StateCreatingConversation, StateStreamingAssistant, StateFinalizing, StateError},
	StateCreatingConversation: {StateStreamingAssistant, StateFinalizing, StateError},
	StateStreamingAssistant:   {StateFinalizing, StateError},
	StateFinalizing:           {StateDone, StateError},
	StateDone:                 {StateIdle},
	StateError:                {StateIdle},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// machine holds the current state. It is guarded by the orchestrator mutex.
type machine struct {
	state State
}

// advance moves to next if the transition is legal.
func (m *machine) advance(next State) error {
	if !CanTransition(m.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, next)
	}
	m.state = next
	return nil
}

// reset moves a finished machine back to idle before a new send.
func (m *machine) reset() {
	if m.state.IsTerminal() {
		m.state = StateIdle
	}
}

// forceIdle is the abort transition.
func (m *machine) forceIdle() {
	m.state = StateIdle
}
