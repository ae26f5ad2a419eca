// Package rest wraps resty with the conventions shared by the REST API
// connectors: a base URL, per-service authentication, JSON payloads and
// status codes mapped to sentinel errors.
package rest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"resty.dev/v3"
)

// Sentinel errors matched by HTTPError.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrStatus       = errors.New("unexpected status")
)

// HTTPError describes a non-2xx response.
type HTTPError struct {
	Connection string
	Method     string
	URL        string
	Status     int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("rest: %s: %s %s: %d %s", e.Connection, e.Method, e.URL, e.Status, http.StatusText(e.Status))
	if body := strings.TrimSpace(e.Body); body != "" {
		if len(body) > 200 {
			body = body[:200] + "..."
		}
		msg += ": " + body
	}
	return msg
}

// Unwrap exposes the sentinel matching the status code.
func (e *HTTPError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		return ErrStatus
	}
}

// Option customises a Connection.
type Option func(*resty.Client)

// WithBearerToken sends "Authorization: Bearer <token>".
func WithBearerToken(token string) Option {
	return func(c *resty.Client) { c.SetAuthToken(token) }
}

// WithBasicAuth sends HTTP basic credentials.
func WithBasicAuth(user, password string) Option {
	return func(c *resty.Client) { c.SetBasicAuth(user, password) }
}

// WithHeader sets a header on every request.
func WithHeader(key, value string) Option {
	return func(c *resty.Client) { c.SetHeader(key, value) }
}

// WithQueryParam adds a query parameter to every request.
func WithQueryParam(key, value string) Option {
	return func(c *resty.Client) { c.SetQueryParam(key, value) }
}

// WithInsecureTLS disables certificate verification.
func WithInsecureTLS() Option {
	return func(c *resty.Client) {
		c.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // opt-in per connection
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// DefaultTimeout bounds requests of connections that set no timeout.
const DefaultTimeout = 30 * time.Second

// Connection is a configured client for one REST API.
type Connection struct {
	name    string
	baseURL string
	client  *resty.Client
}

// New creates a connection rooted at baseURL.
func New(name, baseURL string, opts ...Option) *Connection {
	base := strings.TrimRight(baseURL, "/")
	client := resty.New().
		SetBaseURL(base).
		SetHeader("Accept", "application/json")
	WithTimeout(DefaultTimeout)(client)
	for _, opt := range opts {
		opt(client)
	}
	return &Connection{name: name, baseURL: base, client: client}
}

// Name identifies the connection in errors and logs.
func (c *Connection) Name() string { return c.name }

// BaseURL returns the API root every relative path is joined to.
func (c *Connection) BaseURL() string { return c.baseURL }

// Get decodes the JSON response of GET path into out.
func (c *Connection) Get(ctx context.Context, path string, query map[string]string, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post sends body as JSON and decodes the response into out.
func (c *Connection) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Put sends body as JSON and decodes the response into out.
func (c *Connection) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

// Delete issues a DELETE and decodes any JSON response into out.
func (c *Connection) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, out)
}

// Do performs a request. path is joined to the base URL unless it is
// absolute. out may be nil when the response body is not needed.
func (c *Connection) Do(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	req := c.client.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out).SetExpectResponseContentType("application/json")
	}
	res, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("rest: %s: %s %s: %w", c.name, method, path, err)
	}
	if res.IsError() {
		return &HTTPError{
			Connection: c.name,
			Method:     method,
			URL:        path,
			Status:     res.StatusCode(),
			Body:       res.String(),
		}
	}
	return nil
}

// Close releases idle connections.
func (c *Connection) Close() error {
	return c.client.Close()
}
