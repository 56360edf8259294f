// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	gmutil "github.com/yuin/goldmark/util"

	"github.com/jeranaias/tenantchat/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports threads to a standalone HTML page.
type HTMLExporter struct {
	options *Options
	md      goldmark.Markdown
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{
		options: opts,
		// SECURITY: Raw HTML in message content is dropped, not passed through
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				gmhtml.WithHardWraps(),
				renderer.WithNodeRenderers(gmutil.Prioritized(newCodeBlockRenderer(opts.Theme), 200)),
			),
		),
	}
}

// Export converts a thread to HTML. Message bodies are rendered from
// markdown; everything else is escaped.
func (e *HTMLExporter) Export(t model.Thread) ([]byte, error) {
	if len(t.Messages) == 0 {
		return nil, ErrEmptyThread
	}

	title := html.EscapeString(t.GetTitle())
	var sb bytes.Buffer

	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n<style>\n%s</style>\n</head>\n", title, e.css())
	sb.WriteString("<body>\n<main>\n")
	fmt.Fprintf(&sb, "<h1>%s</h1>\n", title)

	if e.options.IncludeMetadata {
		sb.WriteString("<ul class=\"meta\">\n")
		if t.Model != "" {
			fmt.Fprintf(&sb, "<li>Model: %s</li>\n", html.EscapeString(t.Model))
		}
		fmt.Fprintf(&sb, "<li>Started: %s</li>\n", formatTimestamp(startedAt(t)))
		fmt.Fprintf(&sb, "<li>Messages: %d</li>\n", len(t.Messages))
		if t.Provisional {
			sb.WriteString("<li>Not saved to the server</li>\n")
		}
		sb.WriteString("</ul>\n")
	}

	for _, msg := range t.Messages {
		fmt.Fprintf(&sb, "<section class=\"msg %s\">\n<header>%s", html.EscapeString(string(msg.Role)), html.EscapeString(msg.Role.DisplayName()))
		if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, " <time>%s</time>", formatShortTimestamp(msg.CreatedAt))
		}
		sb.WriteString("</header>\n")

		content := strings.TrimSpace(msg.Content)
		switch {
		case content == "":
			sb.WriteString("<p class=\"empty\">(no reply)</p>\n")
		case msg.Role == model.RoleUser:
			// User text is shown verbatim.
			fmt.Fprintf(&sb, "<pre class=\"user\">%s</pre>\n", html.EscapeString(content))
		default:
			if err := e.md.Convert([]byte(content), &sb); err != nil {
				return nil, fmt.Errorf("render message %s: %w", msg.ID, err)
			}
		}
		sb.WriteString("</section>\n")
	}

	fmt.Fprintf(&sb, "<footer>Exported from tenantchat on %s</footer>\n", e.options.clock().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("</main>\n</body>\n</html>\n")
	return sb.Bytes(), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

func (e *HTMLExporter) css() string {
	bg, fg, card, accent := "#1e1e2e", "#cdd6f4", "#313244", "#a78bfa"
	if e.options.Theme == "light" {
		bg, fg, card, accent = "#ffffff", "#1f2937", "#f3f4f6", "#7c3aed"
	}
	return fmt.Sprintf(`body { background: %s; color: %s; font-family: system-ui, sans-serif; }
main { max-width: 860px; margin: 2rem auto; }
.meta { list-style: none; padding: 0; opacity: 0.7; }
.msg { background: %s; border-radius: 8px; padding: 0.75rem 1rem; margin: 1rem 0; }
.msg header { font-weight: 600; color: %s; }
.msg time { font-weight: 400; opacity: 0.6; margin-left: 0.5rem; }
pre { white-space: pre-wrap; overflow-x: auto; }
footer { opacity: 0.6; font-size: 0.85rem; margin-top: 2rem; }
`, bg, fg, card, accent)
}
