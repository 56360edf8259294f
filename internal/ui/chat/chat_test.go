// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tenantchat/internal/gateway"
	"github.com/jeranaias/tenantchat/internal/model"
	"github.com/jeranaias/tenantchat/internal/orchestrator"
	"github.com/jeranaias/tenantchat/internal/store"
	"github.com/jeranaias/tenantchat/internal/transport"
	"github.com/jeranaias/tenantchat/internal/ui/styles"
)

// =============================================================================
// FAKES
// =============================================================================

type replyStreamer struct {
	chunks []string
}

func (s *replyStreamer) Stream(ctx context.Context, req transport.Request, h transport.Handler) error {
	for _, c := range s.chunks {
		h.OnChunk(c)
	}
	h.OnDone(transport.Completion{})
	h.OnClose()
	return nil
}

type okGateway struct{}

func (okGateway) CreateConversation(ctx context.Context, hint string) (*gateway.Conversation, error) {
	return &gateway.Conversation{ID: "srv-1", Title: hint}, nil
}

func (okGateway) PostMessage(ctx context.Context, threadID, content, modelID string) (*gateway.PostMessageResponse, error) {
	return &gateway.PostMessageResponse{AssistantText: "single reply"}, nil
}

func newTestModel(t *testing.T) (Model, *orchestrator.Orchestrator, *store.Memory, *Bridge) {
	t.Helper()
	mem := store.NewMemory(nil)
	bridge := NewBridge()
	orch := orchestrator.New(mem, &replyStreamer{chunks: []string{"Hello ", "there"}}, okGateway{}, nil, bridge)
	orch.OnStateChange(bridge.StateChanged)

	m := New(orch, mem, bridge, Options{Theme: styles.NewTheme("dark")})
	t.Cleanup(m.Close)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(Model), orch, mem, bridge
}

func press(t *testing.T, m Model, k tea.KeyType) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(tea.KeyMsg{Type: k})
	return updated.(Model), cmd
}

// =============================================================================
// TESTS
// =============================================================================

func TestSubmit_SendsAndRendersReply(t *testing.T) {
	m, orch, mem, _ := newTestModel(t)

	m.input.SetValue("hi there")
	m, cmd := press(t, m, tea.KeyEnter)
	require.NotNil(t, cmd)
	require.Empty(t, m.input.Value())
	require.True(t, m.sending)

	msg := cmd()
	done, ok := msg.(SendFinishedMsg)
	require.True(t, ok)
	require.Equal(t, orchestrator.OutcomeCompleted, done.Outcome.Status)

	updated, _ := m.Update(done)
	m = updated.(Model)
	require.False(t, m.sending)

	require.Equal(t, "srv-1", orch.ActiveThread())
	th, ok := mem.Snapshot().Find("srv-1")
	require.True(t, ok)
	require.Len(t, th.Messages, 2)
	require.Equal(t, "Hello there", th.Messages[1].Content)

	view := m.View()
	require.Contains(t, view, "tenantchat")
	require.Contains(t, view, "hi there")
	require.Contains(t, view, "Reply complete")
}

func TestSubmit_BlankIgnored(t *testing.T) {
	m, _, mem, _ := newTestModel(t)

	m.input.SetValue("   ")
	m, cmd := press(t, m, tea.KeyEnter)
	require.Nil(t, cmd)
	require.False(t, m.sending)
	require.Empty(t, mem.Snapshot())
}

func TestSubmit_IgnoredWhileSending(t *testing.T) {
	m, _, _, _ := newTestModel(t)
	m.sending = true

	m.input.SetValue("queued")
	m, cmd := press(t, m, tea.KeyEnter)
	require.Nil(t, cmd)
	require.Equal(t, "queued", m.input.Value(), "input kept")
}

func TestAbort_WhenIdleIsNoop(t *testing.T) {
	m, orch, _, _ := newTestModel(t)

	_, cmd := press(t, m, tea.KeyEsc)
	require.Nil(t, cmd)
	require.Equal(t, orchestrator.StateIdle, orch.State())
}

func TestNewThread_ClearsActive(t *testing.T) {
	m, orch, _, _ := newTestModel(t)
	orch.SetActiveThread("srv-9")

	m, _ = press(t, m, tea.KeyCtrlN)
	require.Empty(t, orch.ActiveThread())
	require.Contains(t, m.View(), model.DefaultTitle)
}

func TestSwitchThread(t *testing.T) {
	m, orch, mem, _ := newTestModel(t)
	mem.Update(func(model.Threads) model.Threads {
		return model.Threads{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}}
	})
	updated, _ := m.Update(StoreChangedMsg{})
	m = updated.(Model)

	m, _ = press(t, m, tea.KeyCtrlDown)
	require.Equal(t, "a", orch.ActiveThread())
	m, _ = press(t, m, tea.KeyCtrlDown)
	require.Equal(t, "b", orch.ActiveThread())
	m, _ = press(t, m, tea.KeyCtrlDown)
	require.Equal(t, "a", orch.ActiveThread(), "wraps around")
	_, _ = press(t, m, tea.KeyCtrlUp)
	require.Equal(t, "b", orch.ActiveThread())
}

func TestCycleModel(t *testing.T) {
	m, _, _, _ := newTestModel(t)
	require.Equal(t, "lite", m.ModelKey())

	m, _ = press(t, m, tea.KeyTab)
	require.Equal(t, "standard", m.ModelKey())
	m, _ = press(t, m, tea.KeyTab)
	require.Equal(t, "advanced", m.ModelKey())
	require.Contains(t, m.View(), "single reply")
}

func TestNotificationToast(t *testing.T) {
	m, _, _, _ := newTestModel(t)

	n := orchestrator.Notification{Title: "Reply not saved", Severity: orchestrator.SeverityWarning}
	updated, cmd := m.Update(NotificationMsg{Notification: n})
	m = updated.(Model)
	require.NotNil(t, cmd)
	require.Contains(t, m.View(), "[Warning] Reply not saved")

	// A stale expiry leaves a newer toast alone.
	updated, _ = m.Update(NotificationMsg{Notification: n})
	m = updated.(Model)
	updated, _ = m.Update(toastExpiredMsg{seq: 1})
	m = updated.(Model)
	require.NotNil(t, m.toast)

	updated, _ = m.Update(toastExpiredMsg{seq: m.toastSeq})
	m = updated.(Model)
	require.Nil(t, m.toast)
}

func TestBridge_NeverBlocks(t *testing.T) {
	b := NewBridge()
	for i := 0; i < 100; i++ {
		b.Notify(orchestrator.Notification{Title: "x"})
		b.StateChanged(orchestrator.StateIdle)
	}
	require.Len(t, b.notes, cap(b.notes))
	require.Len(t, b.states, 1)
}

func TestBridge_CommandsDeliverMessages(t *testing.T) {
	b := NewBridge()
	b.StateChanged(orchestrator.StateDone)
	require.IsType(t, StateChangedMsg{}, waitForState(b.states)())

	b.Notify(orchestrator.Notification{Title: "t"})
	msg := waitForNotification(b.notes)()
	require.Equal(t, "t", msg.(NotificationMsg).Notification.Title)
}

func TestRenderMessage_States(t *testing.T) {
	m, _, _, _ := newTestModel(t)

	skeleton := model.NewAssistantPlaceholder()
	require.Contains(t, m.renderMessage(skeleton), "thinking")

	streaming := model.NewAssistantPlaceholder()
	streaming.AppendContent("partial")
	require.Contains(t, m.renderMessage(streaming), "partial")

	empty := model.NewAssistantPlaceholder()
	empty.EndStream()
	require.Contains(t, m.renderMessage(empty), "(no reply)")

	final := model.NewAssistantPlaceholder()
	final.SetFinalContent("**bold** reply")
	require.Contains(t, m.renderMessage(final), "bold")
}

func TestMarkdown_CachesPerContent(t *testing.T) {
	md := newMarkdown("dark", 60)
	md.setWidth(100)

	a := md.render("m1", "# Title")
	require.Equal(t, a, md.render("m1", "# Title"))
	require.Len(t, md.cache, 1)

	b := md.render("m1", "# Other")
	require.NotEqual(t, a, b)
	require.True(t, strings.Contains(b, "Other"))
}
