// Package exchange talks to the trading venue: the REST endpoints used for
// accounts and order entry, the wire decoding of the market-data feeds, and
// the SSE and WebSocket transports those feeds arrive on.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketclient/internal/domain"
)

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 1024

// Client is the REST client for the venue API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a new REST client.
//
// baseURL is the API root, e.g. "http://localhost:8080".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// NewRequestID returns a fresh client request identifier.
func NewRequestID() string {
	return uuid.NewString()
}

// doRequest builds, sends, and reads an HTTP request against the venue API.
// It returns the raw response body. Non-2xx responses become a
// *domain.RequestError tagged with op.
func (c *Client) doRequest(ctx context.Context, op, method, path, requestID string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request body: %w", op, err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failures surface the same way as a non-2xx response.
		return nil, fmt.Errorf("%s: %w: %v", op, domain.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: read response: %v", op, domain.ErrRequestFailed, err)
	}

	if err := checkHTTPStatus(op, resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to a *domain.RequestError.
func checkHTTPStatus(op string, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &domain.RequestError{
		Op:         op,
		StatusCode: statusCode,
		Code:       errorCode(body),
		Body:       string(body),
	}
}

// errorCode extracts a machine-readable code from a JSON error body of the
// form {"code":"..."} or {"error":"..."}. It returns "" for anything else.
func errorCode(body []byte) string {
	var payload struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Code != "" {
		return payload.Code
	}
	return payload.Error
}
