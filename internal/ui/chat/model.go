// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/tenantchat/internal/model"
	"github.com/jeranaias/tenantchat/internal/orchestrator"
	"github.com/jeranaias/tenantchat/internal/store"
	"github.com/jeranaias/tenantchat/internal/ui/styles"
	"github.com/jeranaias/tenantchat/internal/util"
)

// ToastDuration is how long a notification stays on screen.
const ToastDuration = 6 * time.Second

// Layout rows outside the viewport: header, status, toast, input, help.
const chromeHeight = 5

// Options configures the chat view.
type Options struct {
	Theme *styles.Theme

	// ModelKey is the initially selected model; empty selects the
	// registry default
	ModelKey string

	// WordWrap is the markdown render width; 0 follows the terminal
	WordWrap int
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	// Collaborators
	orch    *orchestrator.Orchestrator
	mem     *store.Memory
	bridge  *Bridge
	changes <-chan struct{}

	// Styling
	theme *styles.Theme
	md    *markdown

	// Dimensions
	width  int
	height int
	ready  bool

	// UI Components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	keys     KeyMap

	// Latest store snapshot
	threads model.Threads

	// Selected model key
	modelKey string

	// Notification toast
	toast    *orchestrator.Notification
	toastSeq int

	// Send command running
	sending bool
}

// New creates a chat model. The bridge must be the orchestrator's
// notifier and state callback.
func New(orch *orchestrator.Orchestrator, mem *store.Memory, bridge *Bridge, opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme("auto")
	}

	ti := textinput.New()
	ti.Prompt = theme.InputPrompt.Render("> ")
	ti.Placeholder = "Type a message..."
	ti.CharLimit = 8192
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	modelKey := opts.ModelKey
	if modelKey == "" {
		modelKey = orch.Registry().DefaultKey()
	}

	return Model{
		orch:     orch,
		mem:      mem,
		bridge:   bridge,
		changes:  mem.Changes(),
		theme:    theme,
		md:       newMarkdown(theme.GlamourStyle(), opts.WordWrap),
		input:    ti,
		spinner:  sp,
		keys:     DefaultKeyMap(),
		threads:  mem.Snapshot(),
		modelKey: modelKey,
	}
}

// Close releases the store subscription.
func (m Model) Close() {
	m.mem.Unsubscribe(m.changes)
}

// ModelKey returns the selected model key.
func (m Model) ModelKey() string {
	return m.modelKey
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the listeners.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitForStoreChange(m.changes),
		waitForState(m.bridge.states),
		waitForNotification(m.bridge.notes),
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StoreChangedMsg:
		m.threads = m.mem.Snapshot()
		m.refreshViewport()
		return m, waitForStoreChange(m.changes)

	case StateChangedMsg:
		m.refreshViewport()
		return m, waitForState(m.bridge.states)

	case NotificationMsg:
		n := msg.Notification
		m.toast = &n
		m.toastSeq++
		seq := m.toastSeq
		return m, tea.Batch(
			waitForNotification(m.bridge.notes),
			tea.Tick(ToastDuration, func(time.Time) tea.Msg { return toastExpiredMsg{seq: seq} }),
		)

	case toastExpiredMsg:
		if msg.seq == m.toastSeq {
			m.toast = nil
		}
		return m, nil

	case SendFinishedMsg:
		m.sending = false
		m.threads = m.mem.Snapshot()
		m.refreshViewport()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.orch.IsBusy() {
			m.refreshViewport()
		}
		return m, cmd

	default:
		var cmds []tea.Cmd
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}
}

// =============================================================================
// MESSAGE HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	vpHeight := msg.Height - chromeHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	if !m.ready {
		m.viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = vpHeight
	}
	m.input.Width = msg.Width - 4
	m.md.setWidth(msg.Width)
	m.refreshViewport()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.orch.Abort()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Abort):
		m.orch.Abort()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.NewThread):
		m.orch.SetActiveThread("")
		m.refreshViewport()
		return m, nil

	case key.Matches(msg, m.keys.PrevThread):
		m.switchThread(-1)
		return m, nil

	case key.Matches(msg, m.keys.NextThread):
		m.switchThread(1)
		return m, nil

	case key.Matches(msg, m.keys.CycleModel):
		m.cycleModel()
		return m, nil

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit hands the input to the orchestrator on a command goroutine.
// The input is kept while a send is in flight so nothing typed is lost.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if util.IsBlank(text) || m.sending || m.orch.IsBusy() {
		return m, nil
	}
	m.input.Reset()
	m.sending = true

	in := orchestrator.SendInput{
		Text:     text,
		ThreadID: m.orch.ActiveThread(),
		ModelKey: m.modelKey,
	}
	orch := m.orch
	return m, func() tea.Msg {
		return SendFinishedMsg{Outcome: orch.Send(context.Background(), in)}
	}
}

// switchThread moves the active thread by delta in list order.
func (m *Model) switchThread(delta int) {
	if m.orch.IsBusy() || len(m.threads) == 0 {
		return
	}
	idx := m.threads.Index(m.orch.ActiveThread())
	switch {
	case idx < 0 && delta > 0:
		idx = 0
	case idx < 0:
		idx = len(m.threads) - 1
	default:
		idx = (idx + delta + len(m.threads)) % len(m.threads)
	}
	m.orch.SetActiveThread(m.threads[idx].ID)
	m.refreshViewport()
}

// cycleModel selects the next model key in sorted order.
func (m *Model) cycleModel() {
	keys := m.orch.Registry().Keys()
	if len(keys) == 0 {
		return
	}
	current := m.orch.Registry().Lookup(m.modelKey).Key
	next := keys[0]
	for i, k := range keys {
		if k == current {
			next = keys[(i+1)%len(keys)]
			break
		}
	}
	m.modelKey = next
}

// refreshViewport re-renders the active thread and keeps the view pinned
// to the bottom when it already was.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderThread())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// activeThread returns the active thread from the latest snapshot.
func (m Model) activeThread() (model.Thread, bool) {
	return m.threads.Find(m.orch.ActiveThread())
}
