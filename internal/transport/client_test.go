// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recorder is a Handler that records every callback.
type recorder struct {
	chunks []string
	ids    []string
	done   []Completion
	errs   []error
	closes int
	order  []string
}

func (r *recorder) OnChunk(text string) {
	r.chunks = append(r.chunks, text)
	r.order = append(r.order, "chunk")
}

func (r *recorder) OnMessageID(id string) {
	r.ids = append(r.ids, id)
	r.order = append(r.order, "message_id")
}

func (r *recorder) OnDone(c Completion) {
	r.done = append(r.done, c)
	r.order = append(r.order, "done")
}

func (r *recorder) OnError(err error) {
	r.errs = append(r.errs, err)
	r.order = append(r.order, "error")
}

func (r *recorder) OnClose() {
	r.closes++
	r.order = append(r.order, "close")
}

// sseServer returns a server that writes parts, flushing after each.
func sseServer(t *testing.T, parts ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, p := range parts {
			w.Write([]byte(p))
			flusher.Flush()
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// =============================================================================
// STREAM TESTS
// =============================================================================

func TestStream_ChunkThenDone(t *testing.T) {
	server := sseServer(t,
		"data: {\"chunk\":\"hi\"}\n\n",
		"event: done\ndata: {\"text\":\"hi there\"}\n\n",
	)

	rec := &recorder{}
	err := NewClient(server.URL).Stream(context.Background(), Request{ModelID: "lite-local", Prompt: "hello"}, rec)
	require.NoError(t, err)
	require.Equal(t, []string{"hi"}, rec.chunks)
	require.Equal(t, "hi there", rec.done[0].FinalText)
	require.Equal(t, []string{"chunk", "done", "close"}, rec.order)
}

func TestStream_RequestShape(t *testing.T) {
	var (
		gotPath    string
		gotHeaders http.Header
		gotBody    map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeaders = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte("event: done\n\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL + "/").WithAPIKey("secret").WithTenant("acme")
	err := client.Stream(context.Background(), Request{
		ModelID:        "lite-local",
		ModelName:      "Lite",
		Prompt:         "hello",
		ConversationID: "c-1",
	}, &recorder{})
	require.NoError(t, err)

	require.Equal(t, StreamPath, gotPath)
	require.Equal(t, "Bearer secret", gotHeaders.Get("Authorization"))
	require.Equal(t, "acme", gotHeaders.Get(TenantHeader))
	require.Equal(t, "text/event-stream", gotHeaders.Get("Accept"))
	require.Equal(t, "lite-local", gotBody["model_id"])
	require.Equal(t, "Lite", gotBody["model_name"])
	require.Equal(t, "hello", gotBody["prompt"])
	require.Equal(t, "c-1", gotBody["conversation_id"])
}

func TestStream_ErrorEventIsNonTerminal(t *testing.T) {
	server := sseServer(t,
		"data: {\"chunk\":\"par\"}\n\n",
		"event: error\ndata: {\"message\":\"overloaded\"}\n\n",
		"data: {\"chunk\":\"tial\"}\n\n",
		"event: done\n\n",
	)

	rec := &recorder{}
	err := NewClient(server.URL).Stream(context.Background(), Request{Prompt: "x"}, rec)
	require.NoError(t, err)
	require.Equal(t, []string{"chunk", "error", "chunk", "done", "close"}, rec.order)
	var evErr *EventError
	require.True(t, errors.As(rec.errs[0], &evErr))
	require.Equal(t, "overloaded", evErr.Message)
}

func TestStream_CloseAtEOFWithoutDone(t *testing.T) {
	server := sseServer(t,
		"event: message_id\ndata: {\"message_id\":\"m-1\"}\n\n",
		"data: {\"chunk\":\"a\"}\n\n",
		"data: {\"chunk\":\"b\"}", // unterminated, flushed at EOF
	)

	rec := &recorder{}
	err := NewClient(server.URL).Stream(context.Background(), Request{Prompt: "x"}, rec)
	require.NoError(t, err)
	require.Equal(t, []string{"m-1"}, rec.ids)
	require.Equal(t, []string{"a", "b"}, rec.chunks)
	require.Equal(t, 1, rec.closes)
}

func TestStream_DoneStopsReading(t *testing.T) {
	server := sseServer(t,
		"event: done\n\n",
		"data: {\"chunk\":\"late\"}\n\n",
	)

	rec := &recorder{}
	require.NoError(t, NewClient(server.URL).Stream(context.Background(), Request{}, rec))
	require.Empty(t, rec.chunks)
	require.Equal(t, 1, rec.closes)
}

func TestStream_StatusError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{"body as detail", http.StatusBadGateway, "upstream down\n", "upstream down"},
		{"status text when empty", http.StatusServiceUnavailable, "", "Service Unavailable"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			rec := &recorder{}
			err := NewClient(server.URL).Stream(context.Background(), Request{}, rec)
			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			require.Equal(t, tc.status, statusErr.Status)
			require.Equal(t, tc.wantDetail, statusErr.Detail)
			require.False(t, IsAbort(err))
			require.Zero(t, rec.closes)
		})
	}
}

func TestStream_AbortDoesNotClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"chunk\":\"par\"}\n\n"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	handler := HandlerFuncs{
		Chunk: func(text string) {
			rec.OnChunk(text)
			cancel()
		},
		Close: rec.OnClose,
	}

	err := NewClient(server.URL).Stream(ctx, Request{}, handler)
	require.Error(t, err)
	require.True(t, IsAbort(err), "expected abort, got %v", err)
	require.Equal(t, []string{"par"}, rec.chunks)
	require.Zero(t, rec.closes, "close must not fire on abort")
}

func TestStream_AbortBeforeResponse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	server := sseServer(t, "event: done\n\n")
	err := NewClient(server.URL).Stream(ctx, Request{}, &recorder{})
	require.True(t, IsAbort(err))
}

func TestStream_NotConfigured(t *testing.T) {
	err := NewClient("").Stream(context.Background(), Request{}, &recorder{})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestStream_NetworkErrorIsNotAbort(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := NewClient(url).Stream(context.Background(), Request{}, &recorder{})
	require.Error(t, err)
	require.False(t, IsAbort(err))
}

// =============================================================================
// CHANNEL STREAM TESTS
// =============================================================================

func TestEvents(t *testing.T) {
	server := sseServer(t,
		"data: {\"chunk\":\"a\"}\n\n",
		"event: message_id\ndata: {\"message_id\":\"m\"}\n\n",
		"event: done\ndata: {\"text\":\"a\"}\n\n",
	)

	events, errc, stop := NewClient(server.URL).Events(context.Background(), Request{})
	defer stop()
	var kinds []string
	for ev := range events {
		kinds = append(kinds, ev.Kind.String())
	}
	require.NoError(t, <-errc)
	require.Equal(t, "chunk,message_id,done", strings.Join(kinds, ","))
}

func TestEvents_StopReleasesProducer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; i < 200; i++ {
			w.Write([]byte("data: {\"chunk\":\"x\"}\n\n"))
		}
		flusher.Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	events, errc, stop := NewClient(server.URL).Events(context.Background(), Request{})
	first := <-events
	require.Equal(t, EventChunk, first.Kind)

	// Walk away after one event; the producer is blocked on a full buffer.
	stop()
	stop()

	select {
	case err := <-errc:
		require.True(t, IsAbort(err), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("producer goroutine did not exit after stop")
	}
	for range events {
	}
}

func TestEventKind_String(t *testing.T) {
	require.Equal(t, "chunk", EventChunk.String())
	require.Equal(t, "message_id", EventMessageID.String())
	require.Equal(t, "done", EventDone.String())
	require.Equal(t, "error", EventErr.String())
	require.Equal(t, "unknown", EventKind(99).String())
}

func TestIsAbort(t *testing.T) {
	require.True(t, IsAbort(context.Canceled))
	require.True(t, IsAbort(errors.Join(errors.New("wrapped"), context.Canceled)))
	require.False(t, IsAbort(context.DeadlineExceeded))
	require.False(t, IsAbort(&StatusError{Status: 500}))
	require.False(t, IsAbort(nil))
}
