// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/tenantchat/internal/model"
)

// JSONExporter exports threads to JSON. Output always carries the full
// thread; Options only control the envelope metadata.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type jsonDocument struct {
	Generator  string       `json:"generator,omitempty"`
	ExportedAt *time.Time   `json:"exported_at,omitempty"`
	Thread     model.Thread `json:"thread"`
}

// Export converts a thread to indented JSON.
func (e *JSONExporter) Export(t model.Thread) ([]byte, error) {
	if len(t.Messages) == 0 {
		return nil, ErrEmptyThread
	}
	doc := jsonDocument{Thread: t}
	if e.options.IncludeMetadata {
		now := e.options.clock().UTC()
		doc.Generator = "tenantchat"
		doc.ExportedAt = &now
	}
	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
