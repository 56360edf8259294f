// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the tenantchat TUI.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection. The theme can also be forced to dark or light from config.

# Color System (colors.go)

  - Purple - Assistant messages and the header title
  - Cyan - Brand color and user messages
  - Emerald - Success states
  - Amber - Warnings and in-progress states
  - Rose - Errors

# Theme (theme.go)

Theme holds the lipgloss styles used by the chat view and knows how to
style a status.Tone and an orchestrator.Severity.
*/
package styles
