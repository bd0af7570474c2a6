// Package transport is the HTTP client the recorder uses to talk to the
// collector: JSON POST/PUT and multipart file uploads.
//
// Every request carries an explicit deadline (client timeout) and an
// X-Request-Id header. Responses are read in full (bounded) so callers can
// inspect the body after checking OK. There is no retry: a failed call is
// reported once and the caller decides.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/hazyhaar/screenright/horosafe"
	"github.com/hazyhaar/screenright/idgen"
)

// DefaultTimeout bounds each collector request.
const DefaultTimeout = 30 * time.Second

// Response is a fully-read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// File is one multipart file part.
type File struct {
	Field string
	Name  string
	Data  []byte
}

// Client performs collector requests.
type Client struct {
	client  *http.Client
	maxBody int64
	newID   idgen.Generator
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request deadline. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithIDGenerator sets the generator for X-Request-Id.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(c *Client) { c.newID = gen }
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		client:  &http.Client{Timeout: DefaultTimeout},
		maxBody: horosafe.MaxResponseBody,
		newID:   idgen.Request,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// PostJSON POSTs body encoded as JSON.
func (c *Client) PostJSON(ctx context.Context, url string, body any) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPost, url, body)
}

// PutJSON PUTs body encoded as JSON.
func (c *Client) PutJSON(ctx context.Context, url string, body any) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPut, url, body)
}

// PostFile POSTs f as a multipart/form-data body. header is merged into the
// request headers.
func (c *Client) PostFile(ctx context.Context, url string, f File, header http.Header) (*Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(f.Field, f.Name)
	if err != nil {
		return nil, fmt.Errorf("transport: create form file: %w", err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, fmt.Errorf("transport: write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("transport: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("transport: new request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func (c *Client) sendJSON(ctx context.Context, method, url string, body any) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("transport: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Response, error) {
	reqID := c.newID()
	req.Header.Set("X-Request-Id", reqID)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := horosafe.LimitedReadAll(resp.Body, c.maxBody)
	if err != nil {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("transport: read body: %w", err)
	}

	c.logger.Debug("transport: request done",
		"method", req.Method, "path", req.URL.Path, "status", resp.StatusCode,
		"request_id", reqID, "duration", time.Since(start))
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
