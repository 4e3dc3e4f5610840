package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/rollvault/rollvault/internal/platform/httpx"
)

// DefaultBaseURL is the Discord REST API root.
const DefaultBaseURL = "https://discord.com/api"

const (
	// defaultRetryMargin is added on top of the retry_after the platform
	// asks for, so a resend never lands inside the same window.
	defaultRetryMargin = 5 * time.Millisecond
	// defaultWaitBudget caps the total time one request may spend asleep
	// in rate-limit backoff before giving up with an upstream error.
	defaultWaitBudget = 30 * time.Second
	// fallbackRetryAfter is used when a 429 body carries no retry_after.
	fallbackRetryAfter = 1000 * time.Millisecond
)

// TokenError wraps a failure to obtain a delegated access token, typically
// an expired credential with no usable refresh token. It is distinct from
// transport failures so callers can treat it as "not signed in".
type TokenError struct {
	Err error
}

func (e *TokenError) Error() string { return "discord: token source: " + e.Err.Error() }

func (e *TokenError) Unwrap() error { return e.Err }

// Response is the outcome of a platform request after rate limiting has
// been absorbed. Non-2xx statuses are returned here, not as errors; the
// caller decides what they mean.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the platform answered with a non-error status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode < 300
}

// ClientConfig collects the explicit configuration for a Client.
type ClientConfig struct {
	BaseURL     string
	BotToken    string
	RetryMargin time.Duration
	WaitBudget  time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
	// OnRetry is invoked once per absorbed rate-limit response, before the
	// backoff sleep. Used to feed the retry counter metric.
	OnRetry func()
}

// Client issues requests against the platform API and transparently retries
// on rate-limit responses. It holds no per-user state; delegated calls take
// their token source per call.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	botToken    string
	retryMargin time.Duration
	waitBudget  time.Duration
	logger      *slog.Logger
	onRetry     func()
}

// NewClient constructs a Client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RetryMargin <= 0 {
		cfg.RetryMargin = defaultRetryMargin
	}
	if cfg.WaitBudget <= 0 {
		cfg.WaitBudget = defaultWaitBudget
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		httpClient:  cfg.HTTPClient,
		baseURL:     cfg.BaseURL,
		botToken:    cfg.BotToken,
		retryMargin: cfg.RetryMargin,
		waitBudget:  cfg.WaitBudget,
		logger:      cfg.Logger,
		onRetry:     cfg.OnRetry,
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Bot issues a request authenticated with the service (bot) credential.
func (c *Client) Bot(ctx context.Context, method, path string) (*Response, error) {
	return c.do(ctx, method, path, func(req *http.Request) error {
		req.Header.Set("Authorization", "Bot "+c.botToken)
		return nil
	})
}

// AsUser issues a request authenticated with a delegated user credential.
// Token refresh happens inside the token source; a failure to produce a
// token at all surfaces as a *TokenError.
func (c *Client) AsUser(ctx context.Context, ts oauth2.TokenSource, method, path string) (*Response, error) {
	return c.do(ctx, method, path, func(req *http.Request) error {
		tok, err := ts.Token()
		if err != nil {
			return &TokenError{Err: err}
		}
		tok.SetAuthHeader(req)
		return nil
	})
}

type rateLimitBody struct {
	RetryAfter int64 `json:"retry_after"`
}

// do sends the request and resends it for as long as the platform answers
// 429, sleeping retry_after plus the margin each round. The loop is bounded
// by the wait budget; exhausting it is reported as an upstream error rather
// than occupying the worker indefinitely.
func (c *Client) do(ctx context.Context, method, path string, authorize func(*http.Request) error) (*Response, error) {
	var waited time.Duration
	for {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("discord: build request: %w", err)
		}
		if err := authorize(req); err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("discord: %s %s: %w", method, path, err)
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("discord: read response: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return &Response{StatusCode: resp.StatusCode, Body: body}, nil
		}

		wait := fallbackRetryAfter
		var limits rateLimitBody
		if err := json.Unmarshal(body, &limits); err == nil && limits.RetryAfter > 0 {
			wait = time.Duration(limits.RetryAfter) * time.Millisecond
		}
		wait += c.retryMargin

		if waited+wait > c.waitBudget {
			return nil, fmt.Errorf("discord: rate limit backoff exceeded %s budget: %w", c.waitBudget, httpx.ErrUpstream)
		}
		if c.onRetry != nil {
			c.onRetry()
		}
		c.logger.Debug("discord rate limited",
			slog.String("path", path),
			slog.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		waited += wait
	}
}
