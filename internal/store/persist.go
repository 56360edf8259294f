// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"io"
	"log"
	"time"
)

// DefaultPersistDebounce is the quiet period before changes are written.
const DefaultPersistDebounce = 500 * time.Millisecond

// Persister writes a Memory store through to a Cache. Bursts of updates,
// such as a stream of tokens, are debounced into a single save.
type Persister struct {
	mem      *Memory
	cache    *Cache
	debounce time.Duration
	logger   *log.Logger
}

// NewPersister creates a persister. debounce <= 0 selects the default.
func NewPersister(mem *Memory, cache *Cache, debounce time.Duration) *Persister {
	if debounce <= 0 {
		debounce = DefaultPersistDebounce
	}
	return &Persister{
		mem:      mem,
		cache:    cache,
		debounce: debounce,
		logger:   log.New(io.Discard, "", 0),
	}
}

// WithLogger sets the logger for save failures.
func (p *Persister) WithLogger(logger *log.Logger) *Persister {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Run saves after each debounced burst of changes until ctx is done, then
// performs a final save if anything is still pending.
func (p *Persister) Run(ctx context.Context) {
	changes := p.mem.Changes()
	defer p.mem.Unsubscribe(changes)

	timer := time.NewTimer(p.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			if pending {
				// Parent context is gone; give the final write its own budget.
				saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				p.save(saveCtx)
				cancel()
			}
			return
		case <-changes:
			pending = true
			timer.Reset(p.debounce)
		case <-timer.C:
			pending = false
			p.save(ctx)
		}
	}
}

// Flush saves the current snapshot immediately.
func (p *Persister) Flush(ctx context.Context) error {
	return p.cache.Save(ctx, p.mem.Snapshot())
}

func (p *Persister) save(ctx context.Context) {
	threads := p.mem.Snapshot()
	if err := p.cache.Save(ctx, threads); err != nil {
		p.logger.Printf("CACHE_SAVE_FAILED | threads=%d error=%v", len(threads), err)
		return
	}
	p.logger.Printf("CACHE_SAVED | threads=%d", len(threads))
}
