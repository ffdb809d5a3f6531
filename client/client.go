// Package client is a Go client for the sync server. It tracks the device
// watermark, which only advances after a successful pull, and retries a
// failed sync round with bounded exponential backoff. Retrying a whole push
// verbatim is safe because every server-side operation is idempotent.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tasknest/data-sync/sync"
)

const maxSyncRetries = 3

// Client is not safe for concurrent use; run one sync round at a time, the
// way the protocol expects a device to behave.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	watermarkMs int64
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WatermarkMs is the last server timestamp confirmed by a pull.
func (c *Client) WatermarkMs() int64 {
	return c.watermarkMs
}

// Pull fetches everything changed after the current watermark and advances
// the watermark to the server's timestamp.
func (c *Client) Pull(ctx context.Context) (*sync.PullResponse, error) {
	request := sync.PullRequest{
		LastPulledAt:  c.watermarkMs,
		SchemaVersion: 1,
	}
	var response sync.PullResponse
	if err := c.post(ctx, "/sync/pull", request, &response); err != nil {
		return nil, err
	}
	c.watermarkMs = response.Timestamp
	return &response, nil
}

// Push submits pending local changes. The watermark does not move: only a
// fresh pull confirms what the server actually persisted.
func (c *Client) Push(ctx context.Context, changes sync.Changes) error {
	request := sync.PushRequest{
		Changes:      changes,
		LastPulledAt: c.watermarkMs,
	}
	var response sync.PushResponse
	if err := c.post(ctx, "/sync/push", request, &response); err != nil {
		return err
	}
	if !response.Success {
		return fmt.Errorf("push not acknowledged")
	}
	return nil
}

// Sync runs one full round: pull, hand the delta to apply, push the pending
// changes, then re-pull so the watermark reflects the post-push server
// state. The round is retried with exponential backoff on retryable
// failures; client errors (4xx) abort immediately.
func (c *Client) Sync(ctx context.Context, pending sync.Changes, apply func(*sync.PullResponse) error) error {
	round := func() error {
		delta, err := c.Pull(ctx)
		if err != nil {
			return retryable(err)
		}
		if apply != nil {
			if err := apply(delta); err != nil {
				return backoff.Permanent(err)
			}
		}
		if len(pending) > 0 {
			if err := c.Push(ctx, pending); err != nil {
				return retryable(err)
			}
		}
		delta, err = c.Pull(ctx)
		if err != nil {
			return retryable(err)
		}
		if apply != nil {
			if err := apply(delta); err != nil {
				return backoff.Permanent(err)
			}
		}
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxSyncRetries), ctx)
	return backoff.Retry(round, policy)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.code, e.body)
}

func retryable(err error) error {
	var se *statusError
	if errors.As(err, &se) && se.code >= 400 && se.code < 500 {
		return backoff.Permanent(err)
	}
	return err
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(message))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
