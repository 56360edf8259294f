// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the thread collection shared by the chat pipeline.
//
// Memory is the live store: every mutation is a pure function from the
// previous collection to the next one, applied atomically. Cache persists
// the collection to a local SQLite database so threads survive restarts,
// and Persister writes Memory through to the Cache after each burst of
// changes.
//
// # Usage
//
//	mem := store.NewMemory(nil)
//	mem.Update(func(prev model.Threads) model.Threads {
//	    return prev.Prepend(thread)
//	})
//	for _, t := range mem.Snapshot() { ... }
package store
