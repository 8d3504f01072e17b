// Package backend talks to the externally owned directory REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Observer receives one observation per upstream request.
type Observer interface {
	ObserveUpstream(endpoint string, status int, elapsed time.Duration)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	Observer   Observer
}

// Client issues requests against the directory backend.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	logger   *slog.Logger
	observer Observer
}

// NewClient constructs a Client.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = "http://localhost:3000"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{baseURL: base, apiKey: opts.APIKey, http: hc, logger: logger, observer: opts.Observer}
}

type tokenKey struct{}

// ContextWithToken attaches the signed-in user's access token to ctx. It is
// forwarded instead of the service API key.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// NewRequest builds a request for endpoint relative to the base URL.
func (c *Client) NewRequest(ctx context.Context, method, endpoint string, query url.Values, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("backend: encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	target := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := tokenFromContext(ctx)
	if token == "" {
		token = c.apiKey
	}
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// Get decodes the JSON response of a GET request into dest.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values, dest any) error {
	return c.Do(ctx, http.MethodGet, endpoint, query, nil, dest)
}

// Do performs a request and decodes a JSON response into dest when dest is
// non-nil. Non-2xx responses are mapped to package errors.
func (c *Client) Do(ctx context.Context, method, endpoint string, query url.Values, body, dest any) error {
	req, err := c.NewRequest(ctx, method, endpoint, query, body)
	if err != nil {
		return err
	}
	started := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, 0, started)
		return fmt.Errorf("backend: %s %s: %w", method, endpoint, err)
	}
	defer res.Body.Close()
	c.observe(endpoint, res.StatusCode, started)

	if err := c.checkStatus(req, res); err != nil {
		return err
	}
	if dest == nil || res.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("backend: decode %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) checkStatus(req *http.Request, res *http.Response) error {
	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return nil
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case res.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case res.StatusCode == StatusLimitReached:
		var limit LimitError
		body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		if err := json.Unmarshal(body, &limit); err != nil || !limit.Type.Valid() {
			c.logger.Warn("unrecognised limit payload", slog.String("url", req.URL.Path), slog.String("body", strings.TrimSpace(string(body))))
		}
		return &limit
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	trimmed := strings.TrimSpace(string(body))
	c.logger.Warn("backend request failed",
		slog.String("method", req.Method),
		slog.String("url", req.URL.Path),
		slog.Int("status", res.StatusCode),
		slog.String("body", trimmed),
	)
	return &StatusError{Method: req.Method, Path: req.URL.Path, Status: res.StatusCode, Body: trimmed}
}

func (c *Client) observe(endpoint string, status int, started time.Time) {
	if c.observer != nil {
		c.observer.ObserveUpstream(routeOf(endpoint), status, time.Since(started))
	}
}

// routeOf collapses ids in endpoint so metrics keep a bounded label set.
func routeOf(endpoint string) string {
	parts := strings.Split(strings.Trim(endpoint, "/"), "/")
	for i, part := range parts {
		if i == 0 || part == "" {
			continue
		}
		if isIdentifier(part) {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func isIdentifier(part string) bool {
	digits := 0
	for _, r := range part {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits > 0 && (digits == len(part) || len(part) >= 32)
}
