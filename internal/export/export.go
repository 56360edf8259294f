// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/tenantchat/internal/model"
	"github.com/jeranaias/tenantchat/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a thread to one output format.
type Exporter interface {
	Export(t model.Thread) ([]byte, error)

	// FileExtension returns the file extension including the dot.
	FileExtension() string

	MimeType() string
}

// ErrEmptyThread is returned for threads without messages.
var ErrEmptyThread = errors.New("thread has no messages")

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is where ToFile writes. Default: current directory.
	OutputDir string

	// IncludeMetadata adds the frontmatter and thread summary.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message times.
	IncludeTimestamps bool

	// Theme for HTML export ("light" or "dark").
	Theme string

	// now is replaced in tests.
	now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Theme:             "dark",
	}
}

func (o *Options) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// Formats lists the names accepted by ForFormat.
var Formats = []string{"md", "json", "html"}

// ForFormat returns the exporter for a format name.
func ForFormat(name string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	case "html", "htm":
		return NewHTMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("unknown export format %q (want one of %s)", name, strings.Join(Formats, ", "))
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ToFile exports t into opts.OutputDir and returns the written path. The
// file name is derived from the thread title and the export time.
func ToFile(t model.Thread, exp Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exp.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(t.GetTitle()),
		opts.clock().Format("20060102_150405"),
		exp.FileExtension(),
	)
	outputPath := filepath.Join(opts.OutputDir, filename)

	// SECURITY: Thread content may be tenant confidential; owner-only perms
	if err := util.AtomicWriteFile(outputPath, content, 0600); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return outputPath, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

var filenameReplacer = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-",
	"\"", "-", "<", "-", ">", "-", "|", "-",
	" ", "_", "\t", "_", "\n", "_", "\r", "_",
)

// sanitizeFilename maps a title to a portable file name fragment.
func sanitizeFilename(s string) string {
	s = filenameReplacer.Replace(util.TruncatePrefix(s, 50))
	s = strings.Trim(s, "._-")
	if s == "" {
		return "untitled"
	}
	return s
}

// startedAt is the creation time of the first message, or UpdatedAt.
func startedAt(t model.Thread) time.Time {
	if len(t.Messages) > 0 && !t.Messages[0].CreatedAt.IsZero() {
		return t.Messages[0].CreatedAt
	}
	return t.UpdatedAt
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
