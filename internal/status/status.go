// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package status maps orchestrator state to what the UI displays.
// Everything here is a pure function of its arguments.
package status

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jeranaias/tenantchat/internal/orchestrator"
)

// Tone is the visual emphasis of a status line.
type Tone int

const (
	ToneMuted Tone = iota
	ToneActive
	ToneSuccess
	ToneError
)

// View is the presentation of one orchestrator state.
type View struct {
	// Text is the status line
	Text string

	// ShowAbort is true while a send is in flight
	ShowAbort bool

	// Busy is true while the spinner should animate
	Busy bool

	Tone Tone
}

// Describe maps a state and the in-flight flag to a View.
func Describe(state orchestrator.State, streaming bool) View {
	v := View{ShowAbort: streaming, Busy: state.IsActive()}

	switch state {
	case orchestrator.StateIdle:
		v.Text, v.Tone = "Ready", ToneMuted
	case orchestrator.StateSendingUser:
		v.Text, v.Tone = "Sending...", ToneActive
	case orchestrator.StateCreatingConversation:
		v.Text, v.Tone = "Starting conversation...", ToneActive
	case orchestrator.StateStreamingAssistant:
		v.Text, v.Tone = "Assistant is typing...", ToneActive
	case orchestrator.StateFinalizing:
		v.Text, v.Tone = "Saving reply...", ToneActive
	case orchestrator.StateDone:
		v.Text, v.Tone = "Reply complete", ToneSuccess
	case orchestrator.StateError:
		v.Text, v.Tone = "Something went wrong", ToneError
	default:
		v.Text, v.Tone = state.String(), ToneMuted
	}

	if v.ShowAbort {
		v.Text += " (Esc to stop)"
	}
	return v
}

// SeverityLabel returns the display label of a severity ("Warning").
func SeverityLabel(sev orchestrator.Severity) string {
	return cases.Title(language.English).String(sev.String())
}

// FormatNotification renders a notification on one line.
func FormatNotification(n orchestrator.Notification) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(SeverityLabel(n.Severity))
	b.WriteString("] ")
	b.WriteString(n.Title)
	if n.Description != "" {
		b.WriteString(": ")
		b.WriteString(n.Description)
	}
	return b.String()
}
