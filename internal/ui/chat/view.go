// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/tenantchat/internal/model"
	"github.com/jeranaias/tenantchat/internal/status"
	"github.com/jeranaias/tenantchat/internal/ui/styles"
	"github.com/jeranaias/tenantchat/internal/util"
)

// View renders the chat view.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.renderToast())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	title := model.DefaultTitle
	if t, ok := m.activeThread(); ok {
		title = t.GetTitle()
		if t.Provisional {
			title += " (new)"
		}
	}

	spec := m.orch.Registry().Lookup(m.modelKey)
	brand := "tenantchat"
	modelLabel := spec.DisplayName() + " - " + spec.ModeString()

	// Title gets whatever display width the brand and model label leave.
	avail := m.width - runewidth.StringWidth(brand) - runewidth.StringWidth(modelLabel) - 8
	if avail < 8 {
		avail = 8
	}
	title = util.TruncateWidth(title, avail)

	gap := m.width - 2 - runewidth.StringWidth(brand) - runewidth.StringWidth(title) - runewidth.StringWidth(modelLabel) - 4
	if gap < 1 {
		gap = 1
	}

	line := m.theme.HeaderBrand.Render(brand) + "  " +
		m.theme.HeaderTitle.Render(title) + strings.Repeat(" ", gap) +
		m.theme.HeaderModel.Render(modelLabel)
	return m.theme.Header.Width(m.width).Render(line)
}

// =============================================================================
// THREAD
// =============================================================================

func (m Model) renderThread() string {
	t, ok := m.activeThread()
	if !ok || len(t.Messages) == 0 {
		return m.theme.Hint.Render("Start a new conversation by typing below.")
	}

	var b strings.Builder
	for i, msg := range t.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMessage(msg model.Message) string {
	if msg.Role == model.RoleUser {
		return m.theme.UserLabel.Render(msg.Role.DisplayName()) + "\n" +
			m.theme.UserText.Render(msg.Content)
	}

	label := m.theme.AssistantLabel.Render(msg.Role.DisplayName())
	switch {
	case msg.IsSkeleton:
		return label + "\n" + m.theme.Pending.Render(m.spinner.View()+" thinking")
	case msg.IsStreaming:
		return label + "\n" + m.theme.UserText.Render(msg.Content) + m.theme.Cursor.Render("▌")
	case msg.Content == "":
		return label + "\n" + m.theme.Pending.Render("(no reply)")
	default:
		return label + "\n" + m.md.render(msg.ID, msg.Content)
	}
}

// =============================================================================
// STATUS, TOAST, HELP
// =============================================================================

func (m Model) renderStatus() string {
	v := status.Describe(m.orch.State(), m.orch.IsBusy())
	text := v.Text
	if v.Busy {
		text = m.spinner.View() + " " + text
	}
	return m.theme.Status(v.Tone).Render(text)
}

func (m Model) renderToast() string {
	if m.toast == nil {
		return ""
	}
	line := styles.Indicator(m.toast.Severity) + " " + status.FormatNotification(*m.toast)
	return m.theme.Toast(m.toast.Severity).Render(util.TruncateWidth(line, m.width-2))
}

func (m Model) renderHelp() string {
	parts := make([]string, 0, len(m.keys.ShortHelp()))
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return m.theme.Hint.Render(util.TruncateWidth(strings.Join(parts, " | "), m.width))
}

// =============================================================================
// MARKDOWN
// =============================================================================

// markdown renders finished assistant replies with glamour and caches
// the output per message until the content or width changes. Shared by
// pointer across Model copies.
type markdown struct {
	mu       sync.Mutex
	style    string
	wrap     int // fixed wrap width from config; 0 follows the terminal
	width    int
	renderer *glamour.TermRenderer
	cache    map[string]renderedMessage
}

type renderedMessage struct {
	content string
	out     string
}

func newMarkdown(style string, wrap int) *markdown {
	return &markdown{
		style: style,
		wrap:  wrap,
		width: 80,
		cache: make(map[string]renderedMessage),
	}
}

func (md *markdown) setWidth(termWidth int) {
	md.mu.Lock()
	defer md.mu.Unlock()

	w := md.wrap
	if w == 0 {
		w = termWidth - 4
	}
	if w < 20 {
		w = 20
	}
	if w == md.width && md.renderer != nil {
		return
	}
	md.width = w
	md.renderer = nil
	md.cache = make(map[string]renderedMessage)
}

func (md *markdown) render(id, content string) string {
	md.mu.Lock()
	defer md.mu.Unlock()

	if r, ok := md.cache[id]; ok && r.content == content {
		return r.out
	}

	if md.renderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(md.style),
			glamour.WithWordWrap(md.width),
		)
		if err != nil {
			return content
		}
		md.renderer = r
	}

	out, err := md.renderer.Render(content)
	if err != nil {
		return content
	}
	out = strings.TrimRight(out, "\n")
	md.cache[id] = renderedMessage{content: content, out: out}
	return out
}
