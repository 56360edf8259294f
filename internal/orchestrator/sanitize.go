// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"strings"
	"unicode"
)

var chunkStripper = strings.NewReplacer("\x00", "", "\r", "")

// SanitizeChunk cleans one streamed fragment: NUL bytes and carriage
// returns are removed and a trailing whitespace run becomes one space.
// It applies to a single fragment, never to accumulated text.
func SanitizeChunk(fragment string) string {
	s := chunkStripper.Replace(fragment)
	trimmed := strings.TrimRightFunc(s, unicode.IsSpace)
	if len(trimmed) < len(s) {
		return trimmed + " "
	}
	return s
}
