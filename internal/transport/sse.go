// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bufio"
	"bytes"
	"io"
)

// =============================================================================
// SSE CONSTANTS
// =============================================================================

// MaxRecordSize is the maximum allowed size for a single SSE record (64KB).
const MaxRecordSize = 64 * 1024

// DefaultEvent is the event name of records without an event: line.
const DefaultEvent = "message"

// =============================================================================
// SSE RECORD
// =============================================================================

// Record is one blank-line-terminated SSE record.
type Record struct {
	// Event is the event: field, DefaultEvent when absent
	Event string

	// Data is the data: lines joined by "\n"
	Data []byte

	// HasData is false when the record carried no data: line at all
	HasData bool
}

// =============================================================================
// SSE DECODER
// =============================================================================

// Decoder reads SSE records from a byte stream. Partial records are
// buffered across reads until the terminating blank line arrives.
type Decoder struct {
	reader *bufio.Reader
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReader(r)}
}

// Next returns the next record. At end of input a buffered record without
// its blank line is returned first; io.EOF follows. Records that exceed
// MaxRecordSize fail with ErrRecordTooLarge.
func (d *Decoder) Next() (Record, error) {
	var (
		event     string
		dataLines [][]byte
		seen      bool // any field line in this record
		size      int
	)

	build := func() Record {
		rec := Record{Event: event, HasData: len(dataLines) > 0}
		if rec.Event == "" {
			rec.Event = DefaultEvent
		}
		if rec.HasData {
			rec.Data = bytes.Join(dataLines, []byte("\n"))
		}
		return rec
	}

	for {
		line, err := d.readLine(MaxRecordSize - size)
		if err != nil && err != io.EOF {
			return Record{}, err
		}
		atEOF := err == io.EOF

		size += len(line)
		if size > MaxRecordSize {
			return Record{}, ErrRecordTooLarge
		}

		// Tolerate both \n and \r\n line endings
		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 {
			if atEOF {
				if seen {
					return build(), nil
				}
				return Record{}, io.EOF
			}
			// Blank line terminates a record; leading blank lines are skipped
			if seen {
				return build(), nil
			}
			size = 0
			continue
		}

		d.parseField(line, &event, &dataLines, &seen)

		if atEOF {
			// Best effort: flush the unterminated record
			if seen {
				return build(), nil
			}
			return Record{}, io.EOF
		}
	}
}

// readLine reads one line including its terminator. It fails with
// ErrRecordTooLarge as soon as the line grows past limit bytes, so an
// unterminated line is never buffered beyond limit plus one bufio buffer.
func (d *Decoder) readLine(limit int) ([]byte, error) {
	var line []byte
	for {
		frag, err := d.reader.ReadSlice('\n')
		if len(line)+len(frag) > limit {
			return nil, ErrRecordTooLarge
		}
		line = append(line, frag...)
		if err == bufio.ErrBufferFull {
			continue
		}
		return line, err
	}
}

// parseField applies one field line to the record being built.
func (d *Decoder) parseField(line []byte, event *string, dataLines *[][]byte, seen *bool) {
	// Comment line
	if line[0] == ':' {
		return
	}

	name, value, found := bytes.Cut(line, []byte(":"))
	if found {
		// A single space after the colon is part of the framing
		value = bytes.TrimPrefix(value, []byte(" "))
	}

	switch string(name) {
	case "event":
		*event = string(bytes.TrimSpace(value))
		*seen = true
	case "data":
		*dataLines = append(*dataLines, value)
		*seen = true
	}
	// Ignore other fields (id:, retry:)
}
