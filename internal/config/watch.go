// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// HOT RELOAD
// =============================================================================

// DefaultWatchDebounce coalesces the burst of events editors produce on save.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *log.Logger
}

// NewWatcher watches path. The parent directory is watched rather than the
// file so that editors which save by rename are still seen.
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		watcher:  fw,
		logger:   log.New(io.Discard, "", 0),
	}, nil
}

// WithLogger sets the logger for reload events.
func (w *Watcher) WithLogger(logger *log.Logger) *Watcher {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// Run blocks until ctx is done, calling onChange with each successfully
// reloaded config. Invalid files are logged and skipped so the previous
// config stays in effect.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config)) {
	defer w.watcher.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			cfg, err := LoadFromPath(w.path)
			if err != nil {
				w.logger.Printf("CONFIG_RELOAD_FAILED | path=%s error=%v", w.path, err)
				continue
			}
			w.logger.Printf("CONFIG_RELOADED | path=%s", w.path)
			onChange(cfg)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("CONFIG_WATCH_ERROR | error=%v", err)
		}
	}
}
