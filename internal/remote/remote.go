// Package remote is the HTTP plumbing shared by both service adapters:
// bearer auth, transient retries, and auth-failure classification.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/jdholdren/anisync/internal/anisync"
)

// Client issues authenticated requests against one remote API.
type Client struct {
	hc      *http.Client
	headers map[string]string
}

// NewClient builds a client that sends the bearer token plus any extra
// headers on every request.
func NewClient(accessToken string, extraHeaders map[string]string) *Client {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	for k, v := range extraHeaders {
		headers[k] = v
	}

	return &Client{
		hc: &http.Client{
			Timeout: 15 * time.Second,
		},
		headers: headers,
	}
}

// Do performs the request, retrying on rate limiting, server errors and
// transport failures. The build func is called once per attempt so bodies
// are fresh each time.
//
// A 401 or 403 comes back as [anisync.ErrUnauthorized] so callers can
// trigger re-authentication. Other non-2xx statuses are returned to the
// caller undisturbed; interpreting them is the adapter's business.
func (c *Client) Do(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	var resp *http.Response

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := build()
		if err != nil {
			return fmt.Errorf("error building request: %w", err)
		}
		req = req.WithContext(ctx)
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		r, err := c.hc.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("error performing request: %w", err))
		}

		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
			drain(r)
			return retry.RetryableError(fmt.Errorf("unexpected status code: %d", r.StatusCode))
		}

		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		drain(resp)
		return nil, fmt.Errorf("remote returned %d: %w", resp.StatusCode, anisync.ErrUnauthorized)
	}

	return resp, nil
}

func drain(r *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 4096))
	r.Body.Close()
}
