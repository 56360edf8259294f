// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/tenantchat/internal/export"
	"github.com/jeranaias/tenantchat/internal/model"
	"github.com/jeranaias/tenantchat/internal/store"
	"github.com/jeranaias/tenantchat/internal/util"
)

// =============================================================================
// JSON OUTPUT
// =============================================================================

// JSONResponse is the response format for --json output.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
	Command   string  `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response as indented JSON.
func (r *JSONResponse) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// =============================================================================
// THREADS COMMAND
// =============================================================================

// threadJSON is one row of `tenantchat threads --json`.
type threadJSON struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview,omitempty"`
	Provisional  bool      `json:"provisional,omitempty"`
}

// ListThreads prints the cached threads, most recent first. Text output
// fits previews to width columns; width <= 0 means DefaultTerminalWidth.
func ListThreads(ctx context.Context, cache *store.Cache, w io.Writer, asJSON bool, width int) error {
	metas, err := cache.List(ctx)
	if err != nil {
		if asJSON {
			_ = NewJSONErrorResponse("threads", err).Write(w)
		}
		return fmt.Errorf("list threads: %w", err)
	}

	if asJSON {
		rows := make([]threadJSON, len(metas))
		for i, m := range metas {
			rows[i] = threadJSON{
				ID:           m.ID,
				Title:        m.Title,
				Model:        m.Model,
				UpdatedAt:    m.UpdatedAt.UTC(),
				MessageCount: m.MessageCount,
				Preview:      m.Preview,
				Provisional:  m.Provisional,
			}
		}
		return NewJSONResponse("threads", rows).Write(w)
	}

	if len(metas) == 0 {
		mutedColor.Fprintln(w, "No cached conversations.")
		return nil
	}

	if width <= 0 {
		width = DefaultTerminalWidth
	}
	const previewIndent = 9

	for i, m := range metas {
		title := util.TruncateRunes(m.Title, 50)
		if m.Provisional {
			title += " (unsaved)"
		}
		fmt.Fprintf(w, "%3d. ", i+1)
		promptColor.Fprintf(w, "%-52s", title)
		fmt.Fprintf(w, " %3d msgs  %s\n", m.MessageCount, m.UpdatedAt.Local().Format("2006-01-02 15:04"))
		if preview := util.TruncateWidth(m.Preview, width-previewIndent); preview != "" {
			mutedColor.Fprintf(w, "%*s%s\n", previewIndent, "", preview)
		}
	}
	return nil
}

// =============================================================================
// EXPORT COMMAND
// =============================================================================

// ExportThread writes t to dir in the named format and returns the path.
func ExportThread(t model.Thread, format, dir string) (string, error) {
	opts := export.DefaultOptions()
	opts.OutputDir = dir
	exp, err := export.ForFormat(format, opts)
	if err != nil {
		return "", err
	}
	return export.ToFile(t, exp, opts)
}

// FindThread resolves ref against a thread list: an exact id, a unique id
// prefix, or a 1-based position as printed by `tenantchat threads`.
func FindThread(threads model.Threads, ref string) (model.Thread, error) {
	if t, ok := threads.Find(ref); ok {
		return t, nil
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(threads) {
			return model.Thread{}, fmt.Errorf("no conversation #%d (have %d)", n, len(threads))
		}
		return threads[n-1], nil
	}

	var match *model.Thread
	for i := range threads {
		if strings.HasPrefix(threads[i].ID, ref) {
			if match != nil {
				return model.Thread{}, fmt.Errorf("%q matches more than one conversation", ref)
			}
			match = &threads[i]
		}
	}
	if match == nil {
		return model.Thread{}, fmt.Errorf("no cached conversation matches %q", ref)
	}
	return *match, nil
}

// ExportCached exports a cached thread. With dir "-" the document is
// written to w instead of a file.
func ExportCached(ctx context.Context, cache *store.Cache, ref, format, dir string, w io.Writer) error {
	if ref == "" {
		return fmt.Errorf("usage: tenantchat export <id|N> [--format md|json|html] [--out DIR]")
	}
	threads, err := cache.Load(ctx)
	if err != nil {
		return fmt.Errorf("load threads: %w", err)
	}
	t, err := FindThread(threads, ref)
	if err != nil {
		return err
	}

	if dir == "-" {
		exp, err := export.ForFormat(format, export.DefaultOptions())
		if err != nil {
			return err
		}
		data, err := exp.Export(t)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	path, err := ExportThread(t, format, dir)
	if err != nil {
		return err
	}
	mutedColor.Fprintf(w, "Exported %q to %s\n", t.GetTitle(), path)
	return nil
}
