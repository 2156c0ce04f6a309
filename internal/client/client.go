/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package client talks to a running wavecast server: the control API and
// the live /audio stream.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/friendsincode/wavecast/internal/playback"
	"github.com/friendsincode/wavecast/internal/version"
)

// APIError is a non-2xx answer from the control API.
type APIError struct {
	Status int
	Code   string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("wavecast: status %d", e.Status)
	}
	return fmt.Sprintf("wavecast: %s (status %d)", e.Code, e.Status)
}

// QueueItem is one pending entry as listed by GET /queue.
type QueueItem struct {
	ID    int64  `json:"id"`
	Index int    `json:"index"`
	File  string `json:"file"`
}

// Enqueued is the answer to POST /queue.
type Enqueued struct {
	ID   int64  `json:"enqueued"`
	File string `json:"file"`
}

// Client is a wavecast API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no overall timeout; /audio never ends on its own.
	streamClient *http.Client
}

// New creates a client for the server at baseURL. A missing scheme
// defaults to http.
func New(baseURL string) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	transport := otelhttp.NewTransport(http.DefaultTransport)
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		streamClient: &http.Client{Transport: transport},
	}, nil
}

// Enqueue appends a library file to the play queue.
func (c *Client) Enqueue(ctx context.Context, name string) (Enqueued, error) {
	var out Enqueued
	err := c.do(ctx, http.MethodPost, "/queue", "text/plain", strings.NewReader(name+"\n"), &out)
	return out, err
}

// Queue lists the pending entries in play order.
func (c *Client) Queue(ctx context.Context) ([]QueueItem, error) {
	var out struct {
		Queue []QueueItem `json:"queue"`
	}
	if err := c.do(ctx, http.MethodGet, "/queue", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Queue, nil
}

// Move reorders one pending entry.
func (c *Client) Move(ctx context.Context, from, to int) error {
	form := url.Values{}
	form.Set("from", strconv.Itoa(from))
	form.Set("to", strconv.Itoa(to))
	return c.do(ctx, http.MethodPost, "/queue/move", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), nil)
}

// Remove drops the pending entry at index.
func (c *Client) Remove(ctx context.Context, index int) error {
	form := url.Values{}
	form.Set("index", strconv.Itoa(index))
	return c.do(ctx, http.MethodPost, "/queue/remove", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), nil)
}

// Skip ends the current track early.
func (c *Client) Skip(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/skip", "", nil, nil)
}

// Progress reports the current track's position.
func (c *Client) Progress(ctx context.Context) (playback.Progress, error) {
	var out playback.Progress
	err := c.do(ctx, http.MethodGet, "/progress", "", nil, &out)
	return out, err
}

// Version reports the server's build.
func (c *Client) Version(ctx context.Context) (version.Info, error) {
	var out version.Info
	err := c.do(ctx, http.MethodGet, "/version", "", nil, &out)
	return out, err
}

func (c *Client) newRequest(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := c.newRequest(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	return &APIError{Status: resp.StatusCode, Code: body.Error}
}
