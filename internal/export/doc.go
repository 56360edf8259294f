// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders cached threads to files.
//
// # Supported Formats
//
//   - JSON: the thread as stored, machine readable
//   - Markdown: YAML frontmatter plus one section per message
//   - HTML: standalone page, message bodies rendered from markdown
//
// # Usage
//
//	exp, err := export.ForFormat("md", export.DefaultOptions())
//	path, err := export.ToFile(thread, exp, opts)
package export
