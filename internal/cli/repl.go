// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/peterh/liner"

	"github.com/jeranaias/tenantchat/internal/model"
	"github.com/jeranaias/tenantchat/internal/orchestrator"
	"github.com/jeranaias/tenantchat/internal/status"
	"github.com/jeranaias/tenantchat/internal/store"
	"github.com/jeranaias/tenantchat/internal/util"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	promptColor    = color.New(color.FgCyan, color.Bold)
	assistantColor = color.New(color.FgMagenta, color.Bold)
	infoColor      = color.New(color.FgCyan)
	warningColor   = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed, color.Bold)
	mutedColor     = color.New(color.Faint)
)

func severityColor(sev orchestrator.Severity) *color.Color {
	switch sev {
	case orchestrator.SeverityWarning:
		return warningColor
	case orchestrator.SeverityError:
		return errorColor
	default:
		return infoColor
	}
}

// =============================================================================
// LINE INPUT
// =============================================================================

// LineReader reads one line of input. *liner.State implements it.
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// History provides line editing with a persistent history file.
type History struct {
	line *liner.State
	path string
}

// OpenHistory starts liner and loads the history file in dir.
func OpenHistory(dir string) *History {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	h := &History{line: line, path: filepath.Join(dir, "history")}
	if f, err := os.Open(h.path); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	return h
}

// Prompt implements LineReader.
func (h *History) Prompt(prompt string) (string, error) {
	return h.line.Prompt(prompt)
}

// AppendHistory implements LineReader.
func (h *History) AppendHistory(item string) {
	h.line.AppendHistory(item)
}

// Close writes the history file with 0600 permissions and restores the
// terminal.
func (h *History) Close() error {
	defer h.line.Close()

	if err := os.MkdirAll(filepath.Dir(h.path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = h.line.WriteHistory(f)
	return err
}

// =============================================================================
// REPL
// =============================================================================

// REPL is the line-based chat front-end. It also serves as the
// orchestrator's Notifier.
type REPL struct {
	orch     *orchestrator.Orchestrator
	mem      *store.Memory
	out      io.Writer
	modelKey string

	// interrupts delivers Ctrl+C while a reply is generated
	interrupts <-chan os.Signal

	mu sync.Mutex // serializes writes to out
}

// NewREPL creates a REPL writing to out. Register it as the
// orchestrator's notifier with SetOrchestrator before Run.
func NewREPL(mem *store.Memory, out io.Writer, modelKey string) *REPL {
	return &REPL{mem: mem, out: out, modelKey: modelKey}
}

// SetOrchestrator attaches the orchestrator. It is separate from NewREPL
// because the orchestrator needs the REPL as its notifier.
func (r *REPL) SetOrchestrator(o *orchestrator.Orchestrator) {
	r.orch = o
	if r.modelKey == "" {
		r.modelKey = o.Registry().DefaultKey()
	}
}

// Notify implements orchestrator.Notifier.
func (r *REPL) Notify(n orchestrator.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out)
	severityColor(n.Severity).Fprintln(r.out, status.FormatNotification(n))
}

func (r *REPL) printf(c *color.Color, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c == nil {
		fmt.Fprintf(r.out, format, args...)
		return
	}
	c.Fprintf(r.out, format, args...)
}

// Run reads lines until EOF, Ctrl+C at the prompt, or /quit.
func (r *REPL) Run(ctx context.Context, in LineReader) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	r.interrupts = sigs

	spec := r.orch.Registry().Lookup(r.modelKey)
	r.printf(mutedColor, "tenantchat - %s (%s). /quit to leave.\n", spec.DisplayName(), spec.ModeString())

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := in.Prompt(promptColor.Sprint("you> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				r.printf(nil, "\n")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		in.AppendHistory(line)

		if line == "exit" || line == "quit" {
			return nil
		}
		if strings.HasPrefix(line, "/") {
			if !r.command(line) {
				return nil
			}
			continue
		}

		r.Turn(ctx, line)
	}
}

// command runs a slash command and reports whether the REPL continues.
func (r *REPL) command(line string) bool {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "/quit", "/exit":
		return false

	case "/new":
		r.orch.SetActiveThread("")
		r.printf(mutedColor, "Started a new conversation.\n")

	case "/model":
		reg := r.orch.Registry()
		if arg == "" {
			for _, k := range reg.Keys() {
				spec, _ := reg.Get(k)
				marker := "  "
				if k == reg.Lookup(r.modelKey).Key {
					marker = "* "
				}
				r.printf(nil, "%s%-10s %s (%s)\n", marker, k, spec.DisplayName(), spec.ModeString())
			}
			return true
		}
		spec, ok := reg.Get(arg)
		if !ok {
			r.printf(errorColor, "Unknown model %q\n", arg)
			return true
		}
		r.modelKey = spec.Key
		r.printf(mutedColor, "Using %s (%s).\n", spec.DisplayName(), spec.ModeString())

	case "/threads":
		threads := r.mem.Snapshot()
		if len(threads) == 0 {
			r.printf(mutedColor, "No conversations yet.\n")
			return true
		}
		active := r.orch.ActiveThread()
		for i, t := range threads {
			marker := "  "
			if t.ID == active {
				marker = "* "
			}
			r.printf(nil, "%s%2d. %s (%d messages)\n", marker, i+1, util.TruncateRunes(t.GetTitle(), 60), len(t.Messages))
		}

	case "/switch":
		threads := r.mem.Snapshot()
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(threads) {
			r.printf(errorColor, "Usage: /switch N (see /threads)\n")
			return true
		}
		r.orch.SetActiveThread(threads[n-1].ID)
		r.printf(mutedColor, "Switched to %s.\n", threads[n-1].GetTitle())

	case "/export":
		th, ok := r.mem.Snapshot().Find(r.orch.ActiveThread())
		if !ok {
			r.printf(errorColor, "Nothing to export yet.\n")
			return true
		}
		if arg == "" {
			arg = "md"
		}
		path, err := ExportThread(th, arg, ".")
		if err != nil {
			r.printf(errorColor, "Export failed: %v\n", err)
			return true
		}
		r.printf(mutedColor, "Saved %s\n", path)

	default:
		r.printf(errorColor, "Unknown command %s\n", fields[0])
	}
	return true
}

// Turn sends text and prints the reply as it arrives. Ctrl+C aborts.
func (r *REPL) Turn(ctx context.Context, text string) orchestrator.Outcome {
	changes := r.mem.Changes()
	defer r.mem.Unsubscribe(changes)

	select {
	case <-r.interrupts:
	default:
	}

	p := &replyPrinter{baseline: lastMessageID(r.mem.Snapshot(), r.orch.ActiveThread())}

	done := make(chan orchestrator.Outcome, 1)
	in := orchestrator.SendInput{Text: text, ThreadID: r.orch.ActiveThread(), ModelKey: r.modelKey}
	go func() { done <- r.orch.Send(ctx, in) }()

	r.printf(assistantColor, "assistant> ")
	for {
		select {
		case <-changes:
			r.emit(p)
		case <-r.interrupts:
			if r.orch.Abort() {
				r.printf(mutedColor, " [stopped]")
			}
		case out := <-done:
			r.emit(p)
			r.printf(nil, "\n")
			return out
		}
	}
}

func (r *REPL) emit(p *replyPrinter) {
	delta := p.next(r.mem.Snapshot(), r.orch.ActiveThread())
	if delta != "" {
		r.printf(nil, "%s", delta)
	}
}

// =============================================================================
// REPLY PRINTER
// =============================================================================

// replyPrinter turns successive snapshots into the text not yet printed
// for the newest assistant message.
type replyPrinter struct {
	baseline string // last message id before the turn started
	printed  string
}

func (p *replyPrinter) next(threads model.Threads, threadID string) string {
	t, ok := threads.Find(threadID)
	if !ok {
		return ""
	}
	last, ok := t.LastMessage()
	if !ok || last.Role != model.RoleAssistant || last.ID == p.baseline {
		return ""
	}

	content := last.Content
	if strings.HasPrefix(content, p.printed) {
		delta := content[len(p.printed):]
		p.printed = content
		return delta
	}

	// Replaced rather than extended. Printed text cannot be taken back,
	// so only what lies past it is shown.
	var delta string
	if len(content) > len(p.printed) {
		delta = content[len(p.printed):]
	}
	p.printed = content
	return delta
}

func lastMessageID(threads model.Threads, threadID string) string {
	t, ok := threads.Find(threadID)
	if !ok {
		return ""
	}
	if m, ok := t.LastMessage(); ok {
		return m.ID
	}
	return ""
}
