// Package api is the viewer-side HTTP client for the position log routes.
package api

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

	"github.com/OCAP2/bouncelog/pkg/core"
)

// maxErrorBody bounds how much of a failed response body ends up in errors.
const maxErrorBody = 512

// NetworkError reports a request that never produced an HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Op, e.Status, e.Body)
}

// IsNetworkError reports whether err wraps a NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// Client talks to a bouncelog server. Failed requests are never retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL returns the server root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Healthcheck checks if the server is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	_, err := c.do(ctx, "healthcheck", http.MethodGet, "/healthcheck", nil)
	return err
}

// SavePosition persists one captured position and returns the server's reply.
func (c *Client) SavePosition(ctx context.Context, p core.Position3D) (string, error) {
	return c.text(ctx, "savePosition", http.MethodPost, "/savePosition", p)
}

// SaveAllPositions persists a batch of captured positions.
func (c *Client) SaveAllPositions(ctx context.Context, ps []core.Position3D) (string, error) {
	if ps == nil {
		ps = []core.Position3D{}
	}
	body := struct {
		Positions []core.Position3D `json:"positions"`
	}{ps}
	return c.text(ctx, "saveAllPositions", http.MethodPost, "/saveAllPositions", body)
}

// GetPositions fetches the whole log, most recent first.
func (c *Client) GetPositions(ctx context.Context) ([]core.Snapshot, error) {
	data, err := c.do(ctx, "getPositions", http.MethodGet, "/getPositions", nil)
	if err != nil {
		return nil, err
	}
	var rows []core.Snapshot
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("getPositions: decode response: %w", err)
	}
	if rows == nil {
		rows = []core.Snapshot{}
	}
	return rows, nil
}

// DeleteEntry removes one entry by ID.
func (c *Client) DeleteEntry(ctx context.Context, id uint) (string, error) {
	body := struct {
		ID uint `json:"id"`
	}{id}
	return c.text(ctx, "deleteEntry", http.MethodPost, "/deleteEntry", body)
}

// ClearDashboard empties the log.
func (c *Client) ClearDashboard(ctx context.Context) (string, error) {
	return c.text(ctx, "clearDashboard", http.MethodDelete, "/clearDashboard", nil)
}

// ClearAllEntries empties the log.
func (c *Client) ClearAllEntries(ctx context.Context) (string, error) {
	return c.text(ctx, "clearAllEntries", http.MethodDelete, "/clearAllEntries", nil)
}

func (c *Client) text(ctx context.Context, op, method, path string, body any) (string, error) {
	data, err := c.do(ctx, op, method, path, body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(data)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(msg)}
	}
	return data, nil
}
