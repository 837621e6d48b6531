// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the KubeWizard agent server.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/molihua12345/KubeAgent/internal/util"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the backend client.
type ClientConfig struct {
	// BaseURL is the backend base URL (default: http://127.0.0.1:5000).
	BaseURL string

	// Timeout for non-streaming requests (default: 30s).
	Timeout time.Duration

	// ProbeTimeout bounds a liveness probe (default: 5s).
	ProbeTimeout time.Duration

	// StreamTimeout bounds a whole streamed reply. Zero means no limit.
	StreamTimeout time.Duration

	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64

	// UserAgent is sent with every request.
	UserAgent string

	Logger *zap.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:           "http://127.0.0.1:5000",
		Timeout:           30 * time.Second,
		ProbeTimeout:      5 * time.Second,
		RequestsPerSecond: 5,
		UserAgent:         "kubewizard-chat/1.0",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the backend. It is safe for concurrent use.
//
// Example:
//
//	client := backend.NewClient(backend.DefaultConfig())
//	if err := client.Probe(ctx); err != nil {
//	    log.Println("backend down:", err)
//	}
//	body, err := client.ChatStream(ctx, "list failing pods")
type Client struct {
	config  *ClientConfig
	api     *resty.Client // bounded by config.Timeout
	stream  *resty.Client // no client timeout; bounded by context
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewClient creates a client, filling zero config values with defaults.
func NewClient(config *ClientConfig) *Client {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	cfg := *config

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = defaults.ProbeTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	newResty := func(timeout time.Duration) *resty.Client {
		return resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(timeout).
			SetHeader("User-Agent", cfg.UserAgent).
			SetHeader("Accept", "application/json")
	}

	return &Client{
		config:  &cfg,
		api:     newResty(cfg.Timeout),
		stream:  newResty(0),
		limiter: limiter,
		log:     logger.Named("backend"),
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// request waits for the rate limiter and returns a request bound to ctx.
func (c *Client) request(ctx context.Context, rc *resty.Client, op string) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindConnectivity, Op: op, Message: "rate limit wait aborted", Cause: err}
	}
	return rc.R().SetContext(ctx), nil
}

// =============================================================================
// HEALTH
// =============================================================================

// Probe checks liveness. Any 2xx answer within the probe timeout is
// success; everything else is a connectivity error.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.Health(ctx)
	return err
}

// Health probes liveness and decodes the health body best-effort. A 2xx
// answer with an unreadable body still counts as healthy.
func (c *Client) Health(ctx context.Context) (Health, error) {
	const op = "GET " + PathHealth

	ctx, cancel := context.WithTimeout(ctx, c.config.ProbeTimeout)
	defer cancel()

	req, err := c.request(ctx, c.api, op)
	if err != nil {
		return Health{}, err
	}

	var health Health
	start := time.Now()
	resp, err := req.SetResult(&health).Get(PathHealth)
	if resp == nil || resp.RawResponse == nil {
		if err == nil {
			err = errors.New("no response")
		}
		return Health{}, &Error{Kind: KindConnectivity, Op: op, Message: "backend unreachable", Cause: err}
	}
	if !resp.IsSuccess() {
		return Health{}, &Error{Kind: KindConnectivity, Op: op, Status: resp.StatusCode(), Message: "backend unhealthy"}
	}
	if err != nil {
		// 2xx with an unreadable body is still alive.
		c.log.Debug("health body not decoded", zap.Error(err))
		health = Health{}
	}
	health.Latency = time.Since(start)
	return health, nil
}

// =============================================================================
// HISTORY / CLEAR
// =============================================================================

// History fetches the backend's conversation history in order.
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	const op = "GET " + PathHistory

	req, err := c.request(ctx, c.api, op)
	if err != nil {
		return nil, err
	}

	var body historyResponse
	resp, err := req.SetResult(&body).Get(PathHistory)
	if err := classify(op, resp, err); err != nil {
		return nil, err
	}
	return body.History, nil
}

// Clear asks the backend to forget the conversation. The caller clears
// local state only when this returns nil.
func (c *Client) Clear(ctx context.Context) error {
	const op = "POST " + PathClear

	req, err := c.request(ctx, c.api, op)
	if err != nil {
		return err
	}

	var body statusResponse
	resp, err := req.SetResult(&body).Post(PathClear)
	if err := classify(op, resp, err); err != nil {
		return err
	}
	if body.Status != "" && !strings.EqualFold(body.Status, "success") {
		msg := body.Message
		if msg == "" {
			msg = "clear refused: " + body.Status
		}
		return &Error{Kind: KindRejection, Op: op, Status: resp.StatusCode(), Message: msg}
	}
	return nil
}

// =============================================================================
// CHAT
// =============================================================================

// Chat sends a message and waits for the whole reply.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	const op = "POST " + PathChat

	req, err := c.request(ctx, c.api, op)
	if err != nil {
		return "", err
	}

	var body ChatResponse
	resp, err := req.
		SetBody(ChatRequest{Message: message}).
		SetResult(&body).
		Post(PathChat)
	if err := classify(op, resp, err); err != nil {
		return "", err
	}
	return body.Response, nil
}

// ChatStream sends a message to the streaming endpoint and returns the open
// event-stream body. The caller must close it. When StreamTimeout is set the
// returned body stops delivering data after that long.
func (c *Client) ChatStream(ctx context.Context, message string) (io.ReadCloser, error) {
	const op = "POST " + PathStream

	cancel := context.CancelFunc(func() {})
	if c.config.StreamTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.config.StreamTimeout)
	}

	req, err := c.request(ctx, c.stream, op)
	if err != nil {
		cancel()
		return nil, err
	}

	resp, err := req.
		SetHeader("Accept", "text/event-stream").
		SetHeader("Cache-Control", "no-cache").
		SetBody(ChatRequest{Message: message}).
		SetDoNotParseResponse(true).
		Post(PathStream)
	if err != nil {
		cancel()
		if resp != nil && resp.RawBody() != nil {
			resp.RawBody().Close()
		}
		return nil, &Error{Kind: KindTransport, Op: op, Message: "stream request failed", Cause: err}
	}

	body := resp.RawBody()
	if !resp.IsSuccess() {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		body.Close()
		cancel()
		return nil, &Error{
			Kind:    KindRejection,
			Op:      op,
			Status:  resp.StatusCode(),
			Message: rejectionMessage(resp.StatusCode(), string(snippet)),
		}
	}

	c.log.Debug("stream opened", zap.String("content_type", resp.Header().Get("Content-Type")))
	return &cancelOnClose{ReadCloser: body, cancel: cancel}, nil
}

// IsStreamUnsupported reports whether err means the streaming endpoint does
// not exist on this backend, so /api/chat should be used instead.
func IsStreamUnsupported(err error) bool {
	switch StatusCode(err) {
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return IsRejection(err)
	}
	return false
}

// =============================================================================
// HELPERS
// =============================================================================

// cancelOnClose releases the stream context when the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// classify converts a resty outcome into nil or an *Error.
func classify(op string, resp *resty.Response, err error) error {
	if resp == nil || resp.RawResponse == nil {
		if err == nil {
			err = errors.New("no response")
		}
		return &Error{Kind: KindTransport, Op: op, Message: "request failed", Cause: err}
	}
	if !resp.IsSuccess() {
		return &Error{
			Kind:    KindRejection,
			Op:      op,
			Status:  resp.StatusCode(),
			Message: rejectionMessage(resp.StatusCode(), resp.String()),
		}
	}
	if err != nil {
		return &Error{Kind: KindDecode, Op: op, Status: resp.StatusCode(), Message: "could not decode response", Cause: err}
	}
	return nil
}

// maxRejectionBody bounds how much of an error body reaches the user.
const maxRejectionBody = 200

func rejectionMessage(status int, body string) string {
	body = util.TruncateRunes(strings.TrimSpace(body), maxRejectionBody)
	if body == "" {
		return fmt.Sprintf("backend returned %s", http.StatusText(status))
	}
	return fmt.Sprintf("backend returned %s: %s", http.StatusText(status), body)
}
