// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package status

import (
	"strings"
	"testing"

	"github.com/jeranaias/tenantchat/internal/orchestrator"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		state     orchestrator.State
		streaming bool
		text      string
		busy      bool
		tone      Tone
	}{
		{orchestrator.StateIdle, false, "Ready", false, ToneMuted},
		{orchestrator.StateSendingUser, true, "Sending...", true, ToneActive},
		{orchestrator.StateCreatingConversation, true, "Starting conversation...", true, ToneActive},
		{orchestrator.StateStreamingAssistant, true, "Assistant is typing...", true, ToneActive},
		{orchestrator.StateFinalizing, true, "Saving reply...", true, ToneActive},
		{orchestrator.StateDone, false, "Reply complete", false, ToneSuccess},
		{orchestrator.StateError, false, "Something went wrong", false, ToneError},
	}

	for _, tc := range tests {
		t.Run(tc.state.String(), func(t *testing.T) {
			v := Describe(tc.state, tc.streaming)
			if !strings.HasPrefix(v.Text, tc.text) {
				t.Errorf("Text = %q, want prefix %q", v.Text, tc.text)
			}
			if v.Busy != tc.busy {
				t.Errorf("Busy = %v, want %v", v.Busy, tc.busy)
			}
			if v.Tone != tc.tone {
				t.Errorf("Tone = %v, want %v", v.Tone, tc.tone)
			}
		})
	}
}

func TestDescribe_AbortOnlyWhileStreaming(t *testing.T) {
	for _, state := range []orchestrator.State{
		orchestrator.StateIdle,
		orchestrator.StateStreamingAssistant,
		orchestrator.StateError,
	} {
		if v := Describe(state, false); v.ShowAbort || strings.Contains(v.Text, "Esc") {
			t.Errorf("%s: abort shown while not streaming: %+v", state, v)
		}
		if v := Describe(state, true); !v.ShowAbort {
			t.Errorf("%s: abort hidden while streaming", state)
		}
	}
}

func TestDescribe_Pure(t *testing.T) {
	a := Describe(orchestrator.StateFinalizing, true)
	b := Describe(orchestrator.StateFinalizing, true)
	if a != b {
		t.Errorf("Describe not deterministic: %+v vs %+v", a, b)
	}
}

func TestSeverityLabel(t *testing.T) {
	tests := map[orchestrator.Severity]string{
		orchestrator.SeverityInfo:    "Info",
		orchestrator.SeverityWarning: "Warning",
		orchestrator.SeverityError:   "Error",
	}
	for sev, want := range tests {
		if got := SeverityLabel(sev); got != want {
			t.Errorf("SeverityLabel(%v) = %q, want %q", sev, got, want)
		}
	}
}

func TestFormatNotification(t *testing.T) {
	got := FormatNotification(orchestrator.Notification{
		Title:       "Reply not saved",
		Description: "disk full",
		Severity:    orchestrator.SeverityWarning,
	})
	if got != "[Warning] Reply not saved: disk full" {
		t.Errorf("FormatNotification() = %q", got)
	}

	got = FormatNotification(orchestrator.Notification{Title: "Hi"})
	if got != "[Info] Hi" {
		t.Errorf("FormatNotification() = %q", got)
	}
}
