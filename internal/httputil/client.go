// Package httputil holds the JSON response helpers shared by the HTTP
// handlers and the client used to call a running server's invoke endpoint.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-Id"

// maxResponseBytes bounds how much of a response InvokeClient will read.
const maxResponseBytes = 16 << 20

// HTTPClient is the subset of *http.Client the invoke client needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// InvokeClient calls commands on a running server over POST
// <BaseURL>/invoke/<command>.
type InvokeClient struct {
	BaseURL string
	HTTP    HTTPClient
}

// NewInvokeClient returns a client for baseURL, e.g.
// "http://127.0.0.1:8080/api". A nil c uses http.DefaultClient.
func NewInvokeClient(baseURL string, c HTTPClient) *InvokeClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &InvokeClient{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: c}
}

// Invoke runs command with args (any JSON-encodable value, or a
// json.RawMessage) and returns the raw JSON result. Error responses are
// decoded into apperr errors with the server's kind.
func (c *InvokeClient) Invoke(ctx context.Context, command string, args interface{}) (json.RawMessage, error) {
	var body []byte
	switch a := args.(type) {
	case nil:
		body = []byte("{}")
	case json.RawMessage:
		body = a
	default:
		var err error
		if body, err = json.Marshal(args); err != nil {
			return nil, fmt.Errorf("failed to encode arguments: %w", err)
		}
	}

	endpoint := c.BaseURL + "/invoke/" + url.PathEscape(command)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", command, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, DecodeError(resp.StatusCode, data)
	}
	return json.RawMessage(bytes.TrimSpace(data)), nil
}

// Close releases idle connections held by the underlying *http.Client.
// Other HTTPClient implementations hold nothing to release.
func (c *InvokeClient) Close() error {
	if hc, ok := c.HTTP.(interface{ CloseIdleConnections() }); ok {
		hc.CloseIdleConnections()
	}
	return nil
}

// MockHTTPClient records requests and replays canned responses in order.
// Once the queue is exhausted it answers 200 with an empty body.
type MockHTTPClient struct {
	mu        sync.Mutex
	Requests  []*http.Request
	Bodies    []string
	responses []mockResponse
}

type mockResponse struct {
	status int
	body   string
	err    error
}

// NewMockHTTPClient creates a new mock HTTP client.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues a response.
func (m *MockHTTPClient) AddResponse(status int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{status: status, body: body})
	return m
}

// AddErrorResponse queues a transport error.
func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{err: err})
	return m
}

// Do implements HTTPClient.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	var reqBody string
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		reqBody = string(b)
	}
	m.Bodies = append(m.Bodies, reqBody)

	resp := mockResponse{status: http.StatusOK}
	if len(m.responses) > 0 {
		resp, m.responses = m.responses[0], m.responses[1:]
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return &http.Response{
		StatusCode: resp.status,
		Body:       io.NopCloser(strings.NewReader(resp.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// RequestCount returns the number of recorded requests.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
