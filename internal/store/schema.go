// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

const (
	// SchemaVersion tracks the cache schema version for migrations
	SchemaVersion = 1
)

// Schema is the SQLite schema for the thread cache.
const Schema = `
-- Metadata table for schema version
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- Threads, most recently active first by position
CREATE TABLE IF NOT EXISTS threads (
    id TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    provisional INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL  -- Unix milliseconds
);

CREATE INDEX IF NOT EXISTS idx_threads_position ON threads(position);

-- Messages in display order
CREATE TABLE IF NOT EXISTS messages (
    thread_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL, -- Unix milliseconds
    PRIMARY KEY (thread_id, seq),
    FOREIGN KEY(thread_id) REFERENCES threads(id) ON DELETE CASCADE
);
`

// InitMetadata seeds the metadata table.
const InitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
INSERT OR IGNORE INTO metadata (key, value) VALUES ('last_saved', '0');
`
