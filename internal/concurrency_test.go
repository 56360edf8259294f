// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Run with: go test -race -v ./internal/...
package internal

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tenantchat/internal/gateway"
	"github.com/jeranaias/tenantchat/internal/model"
	"github.com/jeranaias/tenantchat/internal/orchestrator"
	"github.com/jeranaias/tenantchat/internal/store"
	"github.com/jeranaias/tenantchat/internal/transport"
)

const (
	raceConcurrency = 50
	raceIterations  = 20
)

// gatedStreamer holds every stream open until release is closed.
type gatedStreamer struct {
	release chan struct{}
}

func (s *gatedStreamer) Stream(ctx context.Context, req transport.Request, h transport.Handler) error {
	h.OnChunk("x")
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	h.OnDone(transport.Completion{})
	h.OnClose()
	return nil
}

type quietGateway struct{ n atomic.Int64 }

func (g *quietGateway) CreateConversation(ctx context.Context, hint string) (*gateway.Conversation, error) {
	return &gateway.Conversation{ID: "c", Title: hint}, nil
}

func (g *quietGateway) PostMessage(ctx context.Context, threadID, content, modelID string) (*gateway.PostMessageResponse, error) {
	g.n.Add(1)
	return &gateway.PostMessageResponse{}, nil
}

// TestConcurrency_OneSendInFlight fires many sends at one orchestrator
// while the first is held open; all others are rejected.
func TestConcurrency_OneSendInFlight(t *testing.T) {
	mem := store.NewMemory(nil)
	streamer := &gatedStreamer{release: make(chan struct{})}
	gw := &quietGateway{}
	orch := orchestrator.New(mem, streamer, gw, nil, nil)

	first := make(chan orchestrator.Outcome, 1)
	go func() { first <- orch.Send(context.Background(), orchestrator.SendInput{Text: "first"}) }()
	require.Eventually(t, func() bool { return orch.State() == orchestrator.StateStreamingAssistant }, 2*time.Second, time.Millisecond)

	var rejected atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < raceConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := orch.Send(context.Background(), orchestrator.SendInput{Text: "again"})
			if out.Status == orchestrator.OutcomeRejected {
				rejected.Add(1)
			}
			_ = orch.State()
			_ = orch.IsBusy()
			_ = mem.Snapshot()
		}()
	}
	wg.Wait()
	require.Equal(t, int64(raceConcurrency), rejected.Load())

	close(streamer.release)
	require.Equal(t, orchestrator.OutcomeCompleted, (<-first).Status)
	require.Equal(t, int64(1), gw.n.Load())
	require.Len(t, mem.Snapshot(), 1)
}

// TestConcurrency_AbortRacesSend aborts repeatedly while sends start and
// finish. Every send must return and leave no message mid-stream.
func TestConcurrency_AbortRacesSend(t *testing.T) {
	mem := store.NewMemory(nil)
	streamer := &gatedStreamer{release: make(chan struct{})}
	orch := orchestrator.New(mem, streamer, &quietGateway{}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < raceIterations; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			orch.Send(context.Background(), orchestrator.SendInput{Text: "hi", ThreadID: "c"})
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(10 * time.Second)
loop:
	for {
		select {
		case <-done:
			break loop
		case <-ticker.C:
			orch.Abort()
		case <-deadline:
			close(streamer.release)
			t.Fatal("sends did not finish")
		}
	}

	require.False(t, orch.IsBusy())
	for _, th := range mem.Snapshot() {
		for _, m := range th.Messages {
			require.False(t, m.IsStreaming || m.IsSkeleton, "message %s left mid-stream", m.ID)
		}
	}
}

// TestConcurrency_StoreUpdates hammers the store from many writers and
// readers; every update must be applied exactly once.
func TestConcurrency_StoreUpdates(t *testing.T) {
	mem := store.NewMemory(model.Threads{{ID: "t"}})
	changes := mem.Changes()
	defer mem.Unsubscribe(changes)

	var wg sync.WaitGroup
	for i := 0; i < raceConcurrency; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < raceIterations; j++ {
				mem.Update(func(prev model.Threads) model.Threads {
					return prev.AppendMessage("t", model.NewUserMessage("m"))
				})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < raceIterations; j++ {
				if th, ok := mem.Snapshot().Find("t"); ok {
					_ = len(th.Messages)
				}
			}
		}()
	}
	wg.Wait()

	th, ok := mem.Snapshot().Find("t")
	require.True(t, ok)
	require.Len(t, th.Messages, raceConcurrency*raceIterations)
	require.Equal(t, uint64(raceConcurrency*raceIterations), mem.Version())

	select {
	case <-changes:
	default:
		t.Fatal("no change signal")
	}
}
