// Package report renders printable documents through Gotenberg.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no Gotenberg URL was supplied.
var ErrNotConfigured = errors.New("report: gotenberg not configured")

// Page describes the printed page. Sizes are in inches.
type Page struct {
	Width           string
	Height          string
	Margin          string
	Landscape       bool
	PrintBackground bool
}

// A4 is the default page for profile exports.
var A4 = Page{Width: "8.27", Height: "11.7", Margin: "0.4", PrintBackground: true}

// Client wraps interactions with the Gotenberg API.
type Client struct {
	baseURL    string
	page       Page
	httpClient *http.Client
}

// NewClient constructs a new client. A zero timeout uses 30 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		page:    A4,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithPage returns a copy of c printing on page.
func (c *Client) WithPage(page Page) *Client {
	cp := *c
	cp.page = page
	return &cp
}

// Ping checks if the remote Gotenberg service is available.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.baseURL == "" {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gotenberg returned status %d", resp.StatusCode)
	}
	return nil
}

// RenderHTML converts a self-contained HTML document into a PDF.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	if c == nil || c.baseURL == "" {
		return nil, ErrNotConfigured
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, err
	}
	if err := c.writePage(writer); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("render failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) writePage(w *multipart.Writer) error {
	fields := map[string]string{
		"paperWidth":      c.page.Width,
		"paperHeight":     c.page.Height,
		"marginTop":       c.page.Margin,
		"marginBottom":    c.page.Margin,
		"marginLeft":      c.page.Margin,
		"marginRight":     c.page.Margin,
		"landscape":       fmt.Sprint(c.page.Landscape),
		"printBackground": fmt.Sprint(c.page.PrintBackground),
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := w.WriteField(name, value); err != nil {
			return err
		}
	}
	return nil
}
