// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway creates conversations and posts finalized messages to
// the chat backend.
package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the backend API.
const (
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// DefaultRatePerSec and DefaultBurst bound client-side request rate.
	DefaultRatePerSec = 5.0
	DefaultBurst      = 10

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	// TenantHeader carries the tenant identifier.
	TenantHeader = "X-Tenant-ID"
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// SECURITY: TLS 1.2+ required
var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
	TLSClientConfig: &tls.Config{
		MinVersion: tls.VersionTLS12,
	},
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// Conversation is a backend-tracked thread.
type Conversation struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// PostMessageResponse is the reply to PostMessage. AssistantText is set
// for non-streaming models only.
type PostMessageResponse struct {
	AssistantText string `json:"assistant_text"`
	MessageID     string `json:"message_id"`
}

type createConversationRequest struct {
	Title string `json:"title"`
}

type postMessageRequest struct {
	Content string `json:"content"`
	ModelID string `json:"model_id,omitempty"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client calls the conversation endpoints of the chat backend.
type Client struct {
	baseURL    string
	apiKey     string
	tenantID   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewClient creates a gateway client for baseURL with default timeout and
// rate limit.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: sharedTransport,
			Timeout:   DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRatePerSec), DefaultBurst),
		logger:  log.New(io.Discard, "", 0),
	}
}

// WithAPIKey sets the bearer token.
func (c *Client) WithAPIKey(key string) *Client {
	c.apiKey = strings.TrimSpace(key)
	return c
}

// WithTenant sets the tenant header value.
func (c *Client) WithTenant(tenantID string) *Client {
	c.tenantID = tenantID
	return c
}

// WithTimeout sets the per-request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithRateLimit sets the request rate. perSec <= 0 disables limiting.
func (c *Client) WithRateLimit(perSec float64, burst int) *Client {
	if perSec <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	return c
}

// WithHTTPClient replaces the HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithLogger sets the request logger.
func (c *Client) WithLogger(logger *log.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// CreateConversation creates a backend thread titled with titleHint.
// A failure is returned as is; it is never retried here.
func (c *Client) CreateConversation(ctx context.Context, titleHint string) (*Conversation, error) {
	var conv Conversation
	if err := c.doJSON(ctx, "/conversations", createConversationRequest{Title: titleHint}, &conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	if conv.ID == "" {
		return nil, fmt.Errorf("create conversation: %w", ErrEmptyConversationID)
	}
	if conv.Title == "" {
		conv.Title = titleHint
	}
	return &conv, nil
}

// PostMessage appends a finalized message to threadID. For non-streaming
// models the response carries the assistant reply.
func (c *Client) PostMessage(ctx context.Context, threadID, content, modelID string) (*PostMessageResponse, error) {
	path := "/conversations/" + url.PathEscape(threadID) + "/messages"
	var resp PostMessageResponse
	if err := c.doJSON(ctx, path, postMessageRequest{Content: content, ModelID: modelID}, &resp); err != nil {
		return nil, fmt.Errorf("post message: %w", err)
	}
	return &resp, nil
}

// doJSON POSTs body to path and decodes a success response into out.
func (c *Client) doJSON(ctx context.Context, path string, body, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.logger.Printf("GATEWAY_RESPONSE | path=%s status=%d duration=%s", path, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	// SECURITY: Read response with size limit to prevent memory exhaustion
	respBody, err := readResponse(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(resp.StatusCode, bytes.TrimSpace(respBody))
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// readResponse reads the response body with size limits.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// setHeaders sets the common headers for API requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.tenantID != "" {
		req.Header.Set(TenantHeader, c.tenantID)
	}
}
