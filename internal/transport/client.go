// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Configuration constants for the stream endpoint.
const (
	// StreamPath is appended to the base URL.
	StreamPath = "/chat/stream"

	// MaxErrorBodySize caps how much of an error response is read.
	MaxErrorBodySize = 64 * 1024

	// TenantHeader carries the tenant identifier.
	TenantHeader = "X-Tenant-ID"
)

// sharedStreamingClient is used for streaming requests (no timeout, context-controlled).
// PERFORMANCE: Connection pooling for streaming requests.
// SECURITY: TLS 1.2+ required
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	// No timeout for streaming - controlled via context
}

// =============================================================================
// REQUEST AND HANDLER
// =============================================================================

// Request is the body of a stream request.
type Request struct {
	ModelID        string `json:"model_id"`
	ModelName      string `json:"model_name,omitempty"`
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Handler receives stream events in network order. All methods are called
// on the goroutine running Client.Stream.
type Handler interface {
	OnChunk(text string)
	OnMessageID(id string)
	OnDone(c Completion)
	OnError(err error)
	// OnClose fires exactly once when the stream ends normally.
	OnClose()
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Chunk     func(text string)
	MessageID func(id string)
	Done      func(c Completion)
	Error     func(err error)
	Close     func()
}

func (h HandlerFuncs) OnChunk(text string) {
	if h.Chunk != nil {
		h.Chunk(text)
	}
}

func (h HandlerFuncs) OnMessageID(id string) {
	if h.MessageID != nil {
		h.MessageID(id)
	}
}

func (h HandlerFuncs) OnDone(c Completion) {
	if h.Done != nil {
		h.Done(c)
	}
}

func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

func (h HandlerFuncs) OnClose() {
	if h.Close != nil {
		h.Close()
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client opens streams against the chat backend.
type Client struct {
	baseURL    string
	apiKey     string
	tenantID   string
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates a stream client for baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: sharedStreamingClient,
		logger:     log.New(io.Discard, "", 0),
	}
}

// WithAPIKey sets the bearer token.
func (c *Client) WithAPIKey(key string) *Client {
	c.apiKey = key
	return c
}

// WithTenant sets the tenant header value.
func (c *Client) WithTenant(tenantID string) *Client {
	c.tenantID = tenantID
	return c
}

// WithHTTPClient replaces the shared streaming client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithLogger sets the event logger.
func (c *Client) WithLogger(logger *log.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Stream sends req and delivers the reply events to h until a done event,
// end of body, cancellation or a read failure. It returns nil when the
// stream closed normally. Each call opens a new connection.
func (c *Client) Stream(ctx context.Context, req Request, h Handler) error {
	resp, err := c.open(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.consume(ctx, resp.Body, h)
}

// open sends the stream request and checks the response status.
func (c *Client) open(ctx context.Context, req Request) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+StreamPath, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	c.logger.Printf("STREAM_OPEN | model=%s conversation=%s prompt_len=%d", req.ModelID, req.ConversationID, len(req.Prompt))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("stream aborted: %w", ctxErr)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		c.logger.Printf("STREAM_HTTP_ERROR | status=%d", resp.StatusCode)
		return nil, newStatusError(resp.StatusCode, bytes.TrimSpace(body))
	}
	return resp, nil
}

// consume reads records from body and dispatches them to h.
func (c *Client) consume(ctx context.Context, body io.Reader, h Handler) error {
	dec := NewDecoder(body)
	records := 0

	for {
		// Stop delivering once the caller has cancelled
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("stream aborted: %w", err)
		}

		rec, err := dec.Next()
		if err != nil {
			if err == io.EOF {
				c.logger.Printf("STREAM_EOF | records=%d", records)
				h.OnClose()
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("stream aborted: %w", ctxErr)
			}
			if errors.Is(err, ErrRecordTooLarge) {
				return err
			}
			return fmt.Errorf("stream read failed: %w", err)
		}
		records++

		ev, ok := ParseRecord(rec)
		if !ok {
			continue
		}

		// A record that raced the abort is not delivered
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("stream aborted: %w", err)
		}

		switch ev.Kind {
		case EventChunk:
			h.OnChunk(ev.Text)
		case EventMessageID:
			h.OnMessageID(ev.MessageID)
		case EventErr:
			// Non-terminal: a following done still closes the stream
			c.logger.Printf("STREAM_ERROR_EVENT | error=%v", ev.Err)
			h.OnError(ev.Err)
		case EventDone:
			c.logger.Printf("STREAM_DONE | records=%d message_id=%s", records, ev.Completion.MessageID)
			h.OnDone(ev.Completion)
			h.OnClose()
			return nil
		}
	}
}

// setHeaders sets the common headers for stream requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.tenantID != "" {
		req.Header.Set(TenantHeader, c.tenantID)
	}
}

// =============================================================================
// CHANNEL-BASED STREAMING
// =============================================================================

// Events performs a stream and returns a channel of events. The event
// channel is closed when the stream ends; the error channel then yields
// the result of Stream (nil on a normal close) and is closed.
//
// The producing goroutine blocks while the event buffer is full. A caller
// that stops reading before the event channel closes must call stop (or
// cancel ctx); stop is safe to call more than once and after the end.
func (c *Client) Events(ctx context.Context, req Request) (events <-chan Event, errs <-chan error, stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	eventChan := make(chan Event, 64)
	errChan := make(chan error, 1)

	go func() {
		defer cancel()
		defer close(errChan)

		send := func(ev Event) {
			select {
			case eventChan <- ev:
			case <-ctx.Done():
			}
		}

		err := c.Stream(ctx, req, HandlerFuncs{
			Chunk:     func(text string) { send(Event{Kind: EventChunk, Text: text}) },
			MessageID: func(id string) { send(Event{Kind: EventMessageID, MessageID: id}) },
			Done:      func(comp Completion) { send(Event{Kind: EventDone, Completion: comp}) },
			Error:     func(err error) { send(Event{Kind: EventErr, Err: err}) },
		})
		close(eventChan)
		errChan <- err
	}()

	return eventChan, errChan, cancel
}
