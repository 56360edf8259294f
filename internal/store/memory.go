// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"sync"

	"github.com/jeranaias/tenantchat/internal/model"
)

// =============================================================================
// UPDATER INTERFACE
// =============================================================================

// Updater is the mutation API of the thread store.
//
// Update applies fn to the latest collection and stores the result. fn must
// not modify its argument; the model.Threads helpers return fresh copies.
// Snapshot returns the current collection, which callers must treat as
// read-only.
type Updater interface {
	Update(fn func(model.Threads) model.Threads)
	Snapshot() model.Threads
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory is an in-process Updater with change notifications.
type Memory struct {
	mu      sync.Mutex
	threads model.Threads
	version uint64
	subs    []chan struct{}
}

var _ Updater = (*Memory)(nil)

// NewMemory creates a store seeded with initial (may be nil).
func NewMemory(initial model.Threads) *Memory {
	return &Memory{threads: initial}
}

// Update applies fn atomically and notifies subscribers.
func (m *Memory) Update(fn func(model.Threads) model.Threads) {
	m.mu.Lock()
	m.threads = fn(m.threads)
	m.version++
	subs := m.subs
	m.mu.Unlock()

	for _, ch := range subs {
		// Coalesce: one pending signal is enough for a reader to re-snapshot.
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Snapshot returns the current collection.
func (m *Memory) Snapshot() model.Threads {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threads
}

// Version returns the number of updates applied so far.
func (m *Memory) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// Changes returns a channel that receives a signal after updates. Bursts
// of updates may be coalesced into one signal.
func (m *Memory) Changes() <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Unsubscribe stops notifications on a channel returned by Changes.
func (m *Memory) Unsubscribe(ch <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subs {
		if sub == ch {
			next := make([]chan struct{}, 0, len(m.subs)-1)
			next = append(next, m.subs[:i]...)
			m.subs = append(next, m.subs[i+1:]...)
			return
		}
	}
}
