// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across tenantchat packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncatePrefix: hard rune prefix, no ellipsis (conversation title hints)
//   - TruncateRunes: UTF-8 safe truncation with ellipsis for previews
//   - TruncateWidth: display-width truncation for terminal headers
//   - IsBlank: whitespace-only check used by input guards
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	hint := util.TruncatePrefix(text, 50)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
