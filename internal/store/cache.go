// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/jeranaias/tenantchat/internal/model"
	"github.com/jeranaias/tenantchat/internal/util"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrThreadNotFound = errors.New("thread not found")
	ErrCacheClosed    = errors.New("thread cache closed")
)

// DefaultMaxThreads is the number of threads kept when no limit is given.
const DefaultMaxThreads = 100

// =============================================================================
// THREAD CACHE
// =============================================================================

// Cache persists threads in a local SQLite database.
type Cache struct {
	db         *sql.DB
	path       string
	maxThreads int
	mu         sync.RWMutex
	closed     bool
}

// ThreadMeta contains metadata for listing cached threads.
type ThreadMeta struct {
	ID           string
	Title        string
	Model        string
	UpdatedAt    time.Time
	MessageCount int
	Preview      string // First user message truncated
	Provisional  bool
}

// OpenCache opens (creating if needed) the cache at path. maxThreads <= 0
// selects DefaultMaxThreads.
func OpenCache(path string, maxThreads int) (*Cache, error) {
	if path == "" {
		return nil, errors.New("cache path cannot be empty")
	}
	if maxThreads <= 0 {
		maxThreads = DefaultMaxThreads
	}

	// SECURITY: thread content is private, keep the directory owner-only
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &Cache{db: db, path: path, maxThreads: maxThreads}, nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.path
}

// Close closes the database.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save replaces the cached collection with threads, keeping at most
// maxThreads entries from the head. Transient stream flags are not stored.
func (c *Cache) Save(ctx context.Context, threads model.Threads) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrCacheClosed
	}

	if len(threads) > c.maxThreads {
		threads = threads[:c.maxThreads]
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages"); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM threads"); err != nil {
		return fmt.Errorf("failed to clear threads: %w", err)
	}

	threadStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO threads (id, position, title, model, provisional, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer threadStmt.Close()

	msgStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (thread_id, seq, id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer msgStmt.Close()

	for pos, t := range threads {
		if _, err := threadStmt.ExecContext(ctx, t.ID, pos, t.Title, t.Model, boolToInt(t.Provisional), t.UpdatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("failed to save thread %s: %w", t.ID, err)
		}
		for seq, m := range t.Messages {
			if _, err := msgStmt.ExecContext(ctx, t.ID, seq, m.ID, string(m.Role), m.Content, m.CreatedAt.UnixMilli()); err != nil {
				return fmt.Errorf("failed to save message %s: %w", m.ID, err)
			}
		}
	}

	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if _, err := tx.ExecContext(ctx, "UPDATE metadata SET value = ? WHERE key = 'last_saved'", now); err != nil {
		return err
	}

	return tx.Commit()
}

// Delete removes one thread and its messages.
func (c *Cache) Delete(ctx context.Context, id string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrCacheClosed
	}

	res, err := c.db.ExecContext(ctx, "DELETE FROM threads WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	return nil
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Load returns all cached threads in stored order.
func (c *Cache) Load(ctx context.Context) (model.Threads, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrCacheClosed
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, model, provisional, updated_at
		FROM threads ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}

	var threads model.Threads
	index := make(map[string]int)
	for rows.Next() {
		var t model.Thread
		var provisional int
		var updated int64
		if err := rows.Scan(&t.ID, &t.Title, &t.Model, &provisional, &updated); err != nil {
			rows.Close()
			return nil, err
		}
		t.Provisional = provisional != 0
		t.UpdatedAt = time.UnixMilli(updated)
		t.Messages = []model.Message{}
		index[t.ID] = len(threads)
		threads = append(threads, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	msgRows, err := c.db.QueryContext(ctx, `
		SELECT thread_id, id, role, content, created_at
		FROM messages ORDER BY thread_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var threadID, role string
		var m model.Message
		var created int64
		if err := msgRows.Scan(&threadID, &m.ID, &role, &m.Content, &created); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		m.CreatedAt = time.UnixMilli(created)
		if i, ok := index[threadID]; ok {
			threads[i].Messages = append(threads[i].Messages, m)
		}
	}
	return threads, msgRows.Err()
}

// List returns metadata for cached threads, most recent first.
func (c *Cache) List(ctx context.Context) ([]ThreadMeta, error) {
	threads, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}

	metas := make([]ThreadMeta, 0, len(threads))
	for _, t := range threads {
		preview := ""
		for _, m := range t.Messages {
			if m.Role == model.RoleUser {
				preview = util.SingleLine(m.Preview(80))
				break
			}
		}
		metas = append(metas, ThreadMeta{
			ID:           t.ID,
			Title:        t.GetTitle(),
			Model:        t.Model,
			UpdatedAt:    t.UpdatedAt,
			MessageCount: len(t.Messages),
			Preview:      preview,
			Provisional:  t.Provisional,
		})
	}
	return metas, nil
}

// LastSaved returns when Save last committed, or the zero time.
func (c *Cache) LastSaved(ctx context.Context) (time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return time.Time{}, ErrCacheClosed
	}

	var value string
	err := c.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'last_saved'").Scan(&value)
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
