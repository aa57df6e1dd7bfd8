// Package httpx provides a small HTTP client with exponential-backoff
// retries, shared by the providers that speak plain HTTP rather than
// going through an SDK.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultRequestTimeout = 120 * time.Second

// StatusError reports a non-2xx response, preserving a snippet of the
// body for diagnostics.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client retries transient failures (network errors, 5xx) with
// exponential backoff. Client errors (4xx) fail immediately.
type Client struct {
	httpClient *http.Client
	maxElapsed time.Duration
}

// New returns a client that keeps retrying for up to maxElapsed.
func New(maxElapsed time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		maxElapsed: maxElapsed,
	}
}

// PostJSON sends payload as a JSON body and decodes the response into
// target.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, url, headers, body)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// PostForBytes sends payload as a JSON body and returns the raw
// response body, for endpoints that answer with binary media.
func (c *Client) PostForBytes(ctx context.Context, url string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	return c.do(ctx, http.MethodPost, url, headers, body)
}

// GetBytes fetches url and returns the response body.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil, nil)
}

func (c *Client) do(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, error) {
	var result []byte
	var lastErr error

	op := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			lastErr = err
			return err
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: snippet(data)}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				// Client errors won't heal on retry.
				return backoff.Permanent(lastErr)
			}
			return lastErr
		}

		result = data
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}

	return result, nil
}

func snippet(data []byte) string {
	const limit = 200

	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		return s[:limit] + "..."
	}

	return s
}
