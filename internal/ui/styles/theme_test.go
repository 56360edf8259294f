// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"

	"github.com/jeranaias/tenantchat/internal/orchestrator"
	"github.com/jeranaias/tenantchat/internal/status"
)

func TestNewTheme_ForcedMode(t *testing.T) {
	dark := NewTheme("dark")
	if !dark.IsDark || dark.GlamourStyle() != "dark" {
		t.Errorf("dark theme: IsDark=%v style=%s", dark.IsDark, dark.GlamourStyle())
	}

	light := NewTheme("LIGHT")
	if light.IsDark || light.GlamourStyle() != "light" {
		t.Errorf("light theme: IsDark=%v style=%s", light.IsDark, light.GlamourStyle())
	}
}

func TestTheme_StylesRender(t *testing.T) {
	theme := NewTheme("dark")

	for name, out := range map[string]string{
		"header":    theme.HeaderTitle.Render("x"),
		"user":      theme.UserLabel.Render("x"),
		"assistant": theme.AssistantLabel.Render("x"),
		"toast":     theme.ToastError.Render("x"),
	} {
		if out == "" {
			t.Errorf("%s style rendered empty", name)
		}
	}
}

func TestTheme_StatusStyle(t *testing.T) {
	theme := NewTheme("dark")

	tests := []struct {
		tone status.Tone
		want string
	}{
		{status.ToneMuted, theme.StatusMuted.Render("s")},
		{status.ToneActive, theme.StatusActive.Render("s")},
		{status.ToneSuccess, theme.StatusSuccess.Render("s")},
		{status.ToneError, theme.StatusError.Render("s")},
	}
	for _, tc := range tests {
		if got := theme.Status(tc.tone).Render("s"); got != tc.want {
			t.Errorf("Status(%v) rendered %q, want %q", tc.tone, got, tc.want)
		}
	}
}

func TestIndicator(t *testing.T) {
	tests := map[orchestrator.Severity]string{
		orchestrator.SeverityInfo:    "[i]",
		orchestrator.SeverityWarning: "[!]",
		orchestrator.SeverityError:   "[X]",
	}
	for sev, want := range tests {
		if got := Indicator(sev); got != want {
			t.Errorf("Indicator(%v) = %q, want %q", sev, got, want)
		}
	}
}
