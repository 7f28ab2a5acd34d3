// Package backend talks to the external storefront REST API, the authority
// of record for users, catalog, orders and wallets.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/recargaplus/storefront/internal/platform/httpx"
)

// maxBodyBytes bounds upstream responses read into memory.
const maxBodyBytes = 10 << 20

// ErrResponseTooLarge reports an upstream body over the client's limit.
var ErrResponseTooLarge = errors.New("backend: response body exceeds limit")

var (
	// ErrMissingToken is returned before any call is issued without a
	// bearer token.
	ErrMissingToken = fmt.Errorf("backend: missing bearer token: %w", httpx.ErrUnauthorized)
	// ErrNotConfigured means BACKEND_BASE_URL is unset.
	ErrNotConfigured = fmt.Errorf("backend: base url not configured: %w", httpx.ErrConfig)
)

// UpstreamError wraps transport failures (refused connections, timeouts).
type UpstreamError struct {
	Method string
	Path   string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("backend: %s %s: %v", e.Method, e.Path, e.Err)
}

// Unwrap exposes both the cause and httpx.ErrUpstream to errors.Is.
func (e *UpstreamError) Unwrap() []error {
	return []error{e.Err, httpx.ErrUpstream}
}

// Request describes one upstream call.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        []byte
	ContentType string
}

// Response is an upstream reply passed back to callers untouched.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Client issues bearer-authenticated calls against the backend API. Calls
// are never retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxBody    int64
}

// NewClient constructs a client with a bounded per-call timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxBody: maxBodyBytes,
	}
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Do sends req with an Authorization: Bearer header. A blank token fails
// with ErrMissingToken without touching the network.
func (c *Client) Do(ctx context.Context, token string, req Request) (*Response, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	return c.send(ctx, token, req)
}

// GetJSON performs an authenticated GET and decodes a 2xx body into target.
// Non-2xx replies are returned as the status with a nil error.
func (c *Client) GetJSON(ctx context.Context, token, path string, query url.Values, target any) (int, error) {
	resp, err := c.Do(ctx, token, Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return 0, err
	}
	if !resp.OK() {
		return resp.Status, nil
	}
	if err := json.Unmarshal(resp.Body, target); err != nil {
		return resp.Status, fmt.Errorf("backend: decode %s: %w", path, err)
	}
	return resp.Status, nil
}

func (c *Client) send(ctx context.Context, token string, req Request) (*Response, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		contentType := req.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		httpReq.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Method: method, Path: req.Path, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, &UpstreamError{Method: method, Path: req.Path, Err: err}
	}
	if int64(len(data)) > c.maxBody {
		return nil, &UpstreamError{Method: method, Path: req.Path, Err: ErrResponseTooLarge}
	}
	return &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
