// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateConversation(t *testing.T) {
	var gotBody map[string]string
	var gotHeaders http.Header
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotHeaders = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"id":"conv-1","title":"Server title"}`))
	}))
	defer server.Close()

	conv, err := NewClient(server.URL).WithAPIKey(" key ").WithTenant("acme").
		CreateConversation(context.Background(), "hint")
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "/conversations", gotPath)
	require.Equal(t, "conv-1", conv.ID)
	require.Equal(t, "Server title", conv.Title)
	require.Equal(t, "hint", gotBody["title"])
	require.Equal(t, "Bearer key", gotHeaders.Get("Authorization"))
	require.Equal(t, "acme", gotHeaders.Get(TenantHeader))
}

func TestCreateConversation_TitleFallbackAndEmptyID(t *testing.T) {
	responses := []string{`{"id":"c"}`, `{"title":"x"}`}
	var n atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(responses[n.Add(1)-1]))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	conv, err := client.CreateConversation(context.Background(), "hint")
	require.NoError(t, err)
	require.Equal(t, "hint", conv.Title)

	_, err = client.CreateConversation(context.Background(), "hint")
	require.ErrorIs(t, err, ErrEmptyConversationID)
}

func TestCreateConversation_NotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).CreateConversation(context.Background(), "x")
	require.Error(t, err)
	require.True(t, IsRetryable(err))
	require.Equal(t, int32(1), calls.Load(), "create must not be retried by the gateway")
}

func TestPostMessage(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"assistant_text":"full reply","message_id":"m-1"}`))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).PostMessage(context.Background(), "conv-1", "hello", "standard-v1")
	require.NoError(t, err)
	require.Equal(t, "/conversations/conv-1/messages", gotPath)
	require.Equal(t, "hello", gotBody["content"])
	require.Equal(t, "standard-v1", gotBody["model_id"])
	require.Equal(t, "full reply", resp.AssistantText)
	require.Equal(t, "m-1", resp.MessageID)
}

func TestPostMessage_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).PostMessage(context.Background(), "c", "x", "")
	require.NoError(t, err)
	require.Empty(t, resp.AssistantText)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		sentinel  error
		retryable bool
		contains  string
	}{
		{"unauthorized", 401, `{"error":{"code":"auth","message":"bad key"}}`, ErrUnauthorized, false, "bad key"},
		{"forbidden", 403, "", ErrUnauthorized, false, "Forbidden"},
		{"not found", 404, `{"error":{"message":"no such conversation"}}`, ErrNotFound, false, "no such conversation"},
		{"rate limited", 429, "", ErrRateLimited, true, "Too Many Requests"},
		{"server error", 500, `{"error":{"code":"boom","message":"internal"}}`, nil, true, "[boom]"},
		{"bad request", 400, "plain text", nil, false, "plain text"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL).PostMessage(context.Background(), "c", "x", "")
			require.Error(t, err)
			if tc.sentinel != nil {
				require.ErrorIs(t, err, tc.sentinel)
			} else {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				require.Equal(t, tc.status, apiErr.Status)
			}
			require.Equal(t, tc.retryable, IsRetryable(err))
			require.Contains(t, err.Error(), tc.contains)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	require.False(t, IsRetryable(nil))
	require.False(t, IsRetryable(context.Canceled))
	require.False(t, IsRetryable(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	require.True(t, IsRetryable(fmt.Errorf("x: %w", ErrRateLimited)))
	require.True(t, IsRetryable(&APIError{Status: 502}))
	require.False(t, IsRetryable(&APIError{Status: 422}))
}

func TestNotConfigured(t *testing.T) {
	_, err := NewClient("").CreateConversation(context.Background(), "x")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"c"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL).WithRateLimit(1, 1)
	_, err := client.CreateConversation(context.Background(), "x")
	require.NoError(t, err)

	// Burst exhausted; the next call must wait longer than the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.CreateConversation(ctx, "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate limiter")
}

func TestCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(server.URL).WithRateLimit(0, 0).PostMessage(ctx, "c", "x", "")
	require.ErrorIs(t, err, context.Canceled)
}
