// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/tenantchat/internal/orchestrator"
	"github.com/jeranaias/tenantchat/internal/status"
)

// Theme holds all the styled components for the application.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// HEADER
	// ==========================================================================

	Header      lipgloss.Style
	HeaderBrand lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderModel lipgloss.Style

	// ==========================================================================
	// MESSAGES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	UserText       lipgloss.Style
	Pending        lipgloss.Style
	Cursor         lipgloss.Style

	// ==========================================================================
	// STATUS AND INPUT
	// ==========================================================================

	StatusMuted   lipgloss.Style
	StatusActive  lipgloss.Style
	StatusSuccess lipgloss.Style
	StatusError   lipgloss.Style
	Hint          lipgloss.Style
	InputPrompt   lipgloss.Style
	Spinner       lipgloss.Style

	// ==========================================================================
	// NOTIFICATIONS
	// ==========================================================================

	ToastInfo    lipgloss.Style
	ToastWarning lipgloss.Style
	ToastError   lipgloss.Style
}

// NewTheme creates a theme. mode is "auto", "dark" or "light"; auto asks
// the terminal.
func NewTheme(mode string) *Theme {
	colorProfile := termenv.ColorProfile()

	var isDark bool
	switch strings.ToLower(mode) {
	case "dark":
		isDark = true
	case "light":
		isDark = false
	default:
		isDark = termenv.HasDarkBackground()
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}
	t.initStyles()
	return t
}

// GlamourStyle returns the glamour standard style matching the background.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderBrand = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.HeaderModel = lipgloss.NewStyle().Foreground(TextSecondary).Italic(true)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.UserText = lipgloss.NewStyle().Foreground(TextPrimary).PaddingLeft(2)
	t.Pending = lipgloss.NewStyle().Foreground(TextMuted).Italic(true).PaddingLeft(2)
	t.Cursor = lipgloss.NewStyle().Foreground(Purple).Blink(true)

	t.StatusMuted = lipgloss.NewStyle().Foreground(TextMuted)
	t.StatusActive = lipgloss.NewStyle().Foreground(Amber)
	t.StatusSuccess = lipgloss.NewStyle().Foreground(Emerald)
	t.StatusError = lipgloss.NewStyle().Bold(true).Foreground(Rose)
	t.Hint = lipgloss.NewStyle().Foreground(TextMuted)
	t.InputPrompt = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.Spinner = lipgloss.NewStyle().Foreground(Purple)

	toast := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		PaddingLeft(1)
	t.ToastInfo = toast.BorderForeground(Cyan).Foreground(TextPrimary)
	t.ToastWarning = toast.BorderForeground(Amber).Foreground(Amber)
	t.ToastError = toast.BorderForeground(Rose).Foreground(Rose)
}

// Status returns the style for a status tone.
func (t *Theme) Status(tone status.Tone) lipgloss.Style {
	switch tone {
	case status.ToneActive:
		return t.StatusActive
	case status.ToneSuccess:
		return t.StatusSuccess
	case status.ToneError:
		return t.StatusError
	default:
		return t.StatusMuted
	}
}

// Toast returns the style for a notification severity.
func (t *Theme) Toast(sev orchestrator.Severity) lipgloss.Style {
	switch sev {
	case orchestrator.SeverityWarning:
		return t.ToastWarning
	case orchestrator.SeverityError:
		return t.ToastError
	default:
		return t.ToastInfo
	}
}

// Indicator returns the ASCII indicator for a severity.
func Indicator(sev orchestrator.Severity) string {
	switch sev {
	case orchestrator.SeverityWarning:
		return StatusIndicators.Warning
	case orchestrator.SeverityError:
		return StatusIndicators.Error
	default:
		return StatusIndicators.Info
	}
}
