// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tenantchat/internal/model"
)

// =============================================================================
// MEMORY TESTS
// =============================================================================

func TestMemory_UpdateAndSnapshot(t *testing.T) {
	mem := NewMemory(nil)
	require.Empty(t, mem.Snapshot())

	mem.Update(func(prev model.Threads) model.Threads {
		return prev.Prepend(model.Thread{ID: "a"})
	})
	before := mem.Snapshot()

	mem.Update(func(prev model.Threads) model.Threads {
		return prev.Prepend(model.Thread{ID: "b"})
	})

	require.Len(t, before, 1, "earlier snapshot must not see later updates")
	require.Len(t, mem.Snapshot(), 2)
	require.Equal(t, "b", mem.Snapshot()[0].ID)
	require.Equal(t, uint64(2), mem.Version())
}

func TestMemory_ConcurrentUpdates(t *testing.T) {
	mem := NewMemory(model.Threads{{ID: "t"}})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mem.Update(func(prev model.Threads) model.Threads {
				return prev.AppendMessage("t", model.NewUserMessage("x"))
			})
		}()
	}
	wg.Wait()

	th, ok := mem.Snapshot().Find("t")
	require.True(t, ok)
	require.Len(t, th.Messages, 50, "no update may be lost")
}

func TestMemory_Changes(t *testing.T) {
	mem := NewMemory(nil)
	ch := mem.Changes()

	for i := 0; i < 3; i++ {
		mem.Update(func(prev model.Threads) model.Threads { return prev })
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change signal")
	}

	// Signals are coalesced into a single pending notification.
	select {
	case <-ch:
		t.Fatal("expected coalesced signal")
	default:
	}

	mem.Unsubscribe(ch)
	mem.Update(func(prev model.Threads) model.Threads { return prev })
	select {
	case <-ch:
		t.Fatal("unsubscribed channel should not be signalled")
	default:
	}
}

// =============================================================================
// CACHE TESTS
// =============================================================================

func openTestCache(t *testing.T, max int) *Cache {
	t.Helper()
	cache, err := OpenCache(filepath.Join(t.TempDir(), "threads.db"), max)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func sampleThreads() model.Threads {
	user := model.NewUserMessage("What is Go?")
	reply := model.NewAssistantPlaceholder()
	reply.AppendContent("A language.")
	reply.EndStream()

	return model.Threads{
		{ID: "srv-2", Title: "Go", Model: "lite", UpdatedAt: time.Now(), Messages: []model.Message{user, reply}},
		{ID: "local-1", Provisional: true, UpdatedAt: time.Now(), Messages: []model.Message{model.NewUserMessage("draft")}},
	}
}

func TestCache_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := openTestCache(t, 0)

	require.NoError(t, cache.Save(ctx, sampleThreads()))

	loaded, err := cache.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, "srv-2", loaded[0].ID)
	require.Equal(t, "Go", loaded[0].Title)
	require.Len(t, loaded[0].Messages, 2)
	require.Equal(t, model.RoleAssistant, loaded[0].Messages[1].Role)
	require.Equal(t, "A language.", loaded[0].Messages[1].Content)
	require.True(t, loaded[1].Provisional)

	saved, err := cache.LastSaved(ctx)
	require.NoError(t, err)
	require.False(t, saved.IsZero())
}

func TestCache_SaveDropsTransientFlags(t *testing.T) {
	ctx := context.Background()
	cache := openTestCache(t, 0)

	pending := model.NewAssistantPlaceholder()
	threads := model.Threads{{ID: "t", Messages: []model.Message{pending}}}
	require.NoError(t, cache.Save(ctx, threads))

	loaded, err := cache.Load(ctx)
	require.NoError(t, err)
	require.False(t, loaded[0].Messages[0].IsStreaming)
	require.False(t, loaded[0].Messages[0].IsSkeleton)
}

func TestCache_MaxThreads(t *testing.T) {
	ctx := context.Background()
	cache := openTestCache(t, 1)

	require.NoError(t, cache.Save(ctx, sampleThreads()))
	loaded, err := cache.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "srv-2", loaded[0].ID)
}

func TestCache_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	cache := openTestCache(t, 0)
	require.NoError(t, cache.Save(ctx, sampleThreads()))

	metas, err := cache.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	require.Equal(t, "What is Go?", metas[0].Preview)
	require.Equal(t, 2, metas[0].MessageCount)
	require.Equal(t, model.DefaultTitle, metas[1].Title)

	require.NoError(t, cache.Delete(ctx, "srv-2"))
	err = cache.Delete(ctx, "srv-2")
	require.True(t, errors.Is(err, ErrThreadNotFound))

	loaded, err := cache.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
}

func TestCache_Closed(t *testing.T) {
	cache := openTestCache(t, 0)
	require.NoError(t, cache.Close())
	require.NoError(t, cache.Close(), "double close is a no-op")

	_, err := cache.Load(context.Background())
	require.ErrorIs(t, err, ErrCacheClosed)
}

func TestOpenCache_EmptyPath(t *testing.T) {
	_, err := OpenCache("", 0)
	require.Error(t, err)
}

// =============================================================================
// PERSISTER TESTS
// =============================================================================

func TestPersister_WritesThrough(t *testing.T) {
	cache := openTestCache(t, 0)
	mem := NewMemory(nil)
	p := NewPersister(mem, cache, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	// Give Run time to subscribe before updating.
	require.Eventually(t, func() bool {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		return len(mem.subs) > 0
	}, time.Second, 5*time.Millisecond)

	mem.Update(func(prev model.Threads) model.Threads {
		return prev.Prepend(model.Thread{ID: "persisted"})
	})

	require.Eventually(t, func() bool {
		loaded, err := cache.Load(context.Background())
		return err == nil && len(loaded) == 1 && loaded[0].ID == "persisted"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestPersister_Flush(t *testing.T) {
	cache := openTestCache(t, 0)
	mem := NewMemory(sampleThreads())
	require.NoError(t, NewPersister(mem, cache, 0).Flush(context.Background()))

	loaded, err := cache.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 2)
}
