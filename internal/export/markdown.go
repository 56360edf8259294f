// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/tenantchat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports threads to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a thread to Markdown. Message content is already
// markdown and is written as is.
func (e *MarkdownExporter) Export(t model.Thread) ([]byte, error) {
	if len(t.Messages) == 0 {
		return nil, ErrEmptyThread
	}

	var sb strings.Builder
	title := t.GetTitle()

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(title))
		fmt.Fprintf(&sb, "id: %s\n", escapeYAML(t.ID))
		if t.Model != "" {
			fmt.Fprintf(&sb, "model: %s\n", escapeYAML(t.Model))
		}
		fmt.Fprintf(&sb, "date: %s\n", startedAt(t).Format(time.RFC3339))
		fmt.Fprintf(&sb, "updated: %s\n", t.UpdatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "messages: %d\n", len(t.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", e.options.clock().Format(time.RFC3339))
		sb.WriteString("generator: tenantchat\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(title))
	if t.Provisional {
		sb.WriteString("> This conversation was never saved to the server.\n\n")
	}

	for i, msg := range t.Messages {
		label := msg.Role.DisplayName()
		if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.CreatedAt))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		content := strings.TrimSpace(msg.Content)
		if content == "" {
			content = "*(no reply)*"
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")

		if i < len(t.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that would break a heading.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

var markdownEscaper = strings.NewReplacer(
	"#", "\\#", "*", "\\*", "_", "\\_", "[", "\\[", "]", "\\]",
	"\n", " ", "\r", "",
)

// escapeYAML quotes a scalar when it carries YAML syntax.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return "\"" + s + "\""
	}
	return s
}
