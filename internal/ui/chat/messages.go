// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/tenantchat/internal/orchestrator"
)

// =============================================================================
// BUBBLE TEA MESSAGES
// =============================================================================

// StoreChangedMsg reports that the thread store changed.
type StoreChangedMsg struct{}

// StateChangedMsg reports an orchestrator state change. The view reads
// the current state rather than trusting the value carried here.
type StateChangedMsg struct{}

// NotificationMsg carries a user-facing notification.
type NotificationMsg struct {
	Notification orchestrator.Notification
}

// SendFinishedMsg is returned by the send command.
type SendFinishedMsg struct {
	Outcome orchestrator.Outcome
}

// toastExpiredMsg hides the toast with the given sequence number.
type toastExpiredMsg struct {
	seq int
}

// =============================================================================
// BRIDGE
// =============================================================================

// Bridge forwards orchestrator callbacks, which run on the send
// goroutine, into the Bubble Tea loop. Sends never block the caller:
// state changes coalesce and notifications beyond the buffer are dropped.
type Bridge struct {
	states chan struct{}
	notes  chan orchestrator.Notification
}

// NewBridge creates a bridge.
func NewBridge() *Bridge {
	return &Bridge{
		states: make(chan struct{}, 1),
		notes:  make(chan orchestrator.Notification, 16),
	}
}

// Notify implements orchestrator.Notifier.
func (b *Bridge) Notify(n orchestrator.Notification) {
	select {
	case b.notes <- n:
	default:
	}
}

// StateChanged is registered with Orchestrator.OnStateChange.
func (b *Bridge) StateChanged(orchestrator.State) {
	select {
	case b.states <- struct{}{}:
	default:
	}
}

func waitForState(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return StateChangedMsg{}
	}
}

func waitForNotification(ch <-chan orchestrator.Notification) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return NotificationMsg{Notification: n}
	}
}

func waitForStoreChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return StoreChangedMsg{}
	}
}
