package melhorenvio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/rbxlabs/shipbox/internal/models"
)

const (
	defaultBaseURL = "https://melhorenvio.com.br"
	apiVersionPath = "/api/v2"

	serverErrorRetries = 2
	retryBackoffStep   = 500 * time.Millisecond
)

type TokenSource interface {
	EnsureValid(ctx context.Context, accountID string) (*models.Credential, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Client is the authenticated, retrying HTTP client for the Melhor Envio API.
// All binaries share one underlying *http.Client so outbound calls reuse a
// single connection pool.
type Client struct {
	baseURL   string
	userAgent string
	tokens    TokenSource
	httpc     *http.Client

	rl          RateLimiter
	rlPerMinute int64

	sleep func(ctx context.Context, d time.Duration)
}

func New(baseURL, userAgent string, tokens TokenSource, httpc *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(baseURL, apiVersionPath) {
		baseURL += apiVersionPath
	}
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		tokens:    tokens,
		httpc:     httpc,
		sleep:     sleepCtx,
	}
}

// WithRateLimiter caps outbound provider calls per minute (redis-backed).
// Denial only delays the call, it never fails it.
func (c *Client) WithRateLimiter(rl RateLimiter, perMinute int64) *Client {
	c.rl = rl
	c.rlPerMinute = perMinute
	return c
}

// WithSleep overrides the backoff sleeper (tests).
func (c *Client) WithSleep(sleep func(ctx context.Context, d time.Duration)) *Client {
	c.sleep = sleep
	return c
}

// Call issues one authenticated request against the provider API.
//
//   - a first 401 forces one token re-validation and a single retry; a second
//     401 surfaces as *UnauthorizedError
//   - 5xx is retried up to 2 extra times with linear backoff (0.5s, 1s),
//     then surfaces as *UpstreamUnavailableError
//   - any other 4xx surfaces immediately as *UpstreamRejectedError
//   - 204 or an empty body yields a nil payload
//
// Retries are strictly sequential, never concurrent.
func (c *Client) Call(ctx context.Context, method, path, accountID string, body any, query url.Values) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request body")
		}
		payload = b
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	cred, err := c.tokens.EnsureValid(ctx, accountID)
	if err != nil {
		return nil, err
	}

	status, respBody, err := c.do(ctx, method, path, cred.AccessToken, payload, query)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		// Leeway failed to prevent staleness, or the token was revoked
		// out-of-band. One forced re-validation, one retry.
		cred, err = c.tokens.EnsureValid(ctx, accountID)
		if err != nil {
			return nil, err
		}
		status, respBody, err = c.do(ctx, method, path, cred.AccessToken, payload, query)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, &UnauthorizedError{Body: string(respBody)}
		}
	}

	for attempt := 1; status >= 500 && status < 600 && attempt <= serverErrorRetries; attempt++ {
		c.sleep(ctx, time.Duration(attempt)*retryBackoffStep)
		status, respBody, err = c.do(ctx, method, path, cred.AccessToken, payload, query)
		if err != nil {
			return nil, err
		}
	}

	switch {
	case status >= 500 && status < 600:
		return nil, &UpstreamUnavailableError{Status: status, Body: string(respBody)}
	case status == http.StatusUnauthorized:
		return nil, &UnauthorizedError{Body: string(respBody)}
	case status >= 400:
		return nil, &UpstreamRejectedError{Status: status, Body: string(respBody)}
	}

	if status == http.StatusNoContent || len(respBody) == 0 {
		return nil, nil
	}
	return json.RawMessage(respBody), nil
}

func (c *Client) do(ctx context.Context, method, path, token string, payload []byte, query url.Values) (int, []byte, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return 0, nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "read response")
	}
	return resp.StatusCode, b, nil
}

func (c *Client) throttle(ctx context.Context) error {
	if c.rl == nil || c.rlPerMinute <= 0 {
		return nil
	}
	minuteKey := "rl:me:" + time.Now().UTC().Format("200601021504")
	allowed, n, err := c.rl.Allow(ctx, minuteKey, c.rlPerMinute, 70*time.Second)
	if err != nil {
		// Redis being down must not block provider calls.
		slog.Warn("rate limiter unavailable", "error", err.Error())
		return nil
	}
	if !allowed {
		slog.Warn("provider rate limit exceeded", "count", n)
		c.sleep(ctx, retryBackoffStep)
	}
	return ctx.Err()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
