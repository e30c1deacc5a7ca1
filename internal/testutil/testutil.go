// Package testutil provides shared HTTP test helpers.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewJSONRequest creates a test request with a JSON body. An empty body
// sends no body at all. The remote address is loopback so debug handlers
// accept it.
func NewJSONRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "127.0.0.1:54321"
	return req
}

// Serve runs one request through h and returns the recorded response.
func Serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, NewJSONRequest(method, path, body))
	return rec
}

// DecodeJSON decodes the recorded body into v, failing the test on error.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q, want application/json", ct)
	}
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

// AssertJSONError checks the status and the error kind of a JSON error
// response and returns its message.
func AssertJSONError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind string) string {
	t.Helper()
	AssertStatusCode(t, rec.Code, status)
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	DecodeJSON(t, rec, &body)
	if kind != "" && body.Kind != kind {
		t.Errorf("error kind = %q, want %q", body.Kind, kind)
	}
	if body.Error == "" {
		t.Error("expected non-empty error message")
	}
	return body.Error
}
