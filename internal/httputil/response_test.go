package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/germanygsg/taurimedrec/internal/apperr"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "test error")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp["error"] != "test error" {
		t.Errorf("error = %s, want 'test error'", resp["error"])
	}
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	data := map[string]string{"message": "hello"}
	WriteJSON(rec, http.StatusCreated, data)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp["message"] != "hello" {
		t.Errorf("message = %s, want 'hello'", resp["message"])
	}
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	data := map[string]int{"count": 42}
	WriteJSONOK(rec, data)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp["count"] != 42 {
		t.Errorf("count = %d, want 42", resp["count"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	MethodNotAllowed(rec)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestBadRequest(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	BadRequest(rec, "invalid input")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NotFound(rec, "resource not found")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{apperr.New(apperr.KindNotFound, "patient 3"), http.StatusNotFound, "not-found"},
		{apperr.New(apperr.KindConstraint, "UNIQUE constraint failed"), http.StatusConflict, "constraint-violation"},
		{apperr.New(apperr.KindUnsupported, "Printing only available on Android"), http.StatusNotImplemented, "unsupported"},
		{apperr.New(apperr.KindInvalidArgument, "bad"), http.StatusBadRequest, "invalid-argument"},
		{errors.New("disk I/O error"), http.StatusInternalServerError, "io-failure"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		WriteError(rec, tt.err)

		if rec.Code != tt.status {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.status)
		}
		var body ErrorBody
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body.Kind != tt.kind {
			t.Errorf("kind = %s, want %s", body.Kind, tt.kind)
		}
		if body.Error != tt.err.Error() {
			t.Errorf("error = %s, want %s", body.Error, tt.err.Error())
		}
	}
}

func TestDecodeError(t *testing.T) {
	t.Parallel()

	err := DecodeError(http.StatusConflict, []byte(`{"error":"UNIQUE constraint failed","kind":"constraint-violation"}`))
	if apperr.KindOf(err) != apperr.KindConstraint {
		t.Errorf("kind = %v, want constraint", apperr.KindOf(err))
	}
	if err.Error() != "UNIQUE constraint failed" {
		t.Errorf("message = %q", err.Error())
	}

	err = DecodeError(http.StatusNotImplemented, []byte(`{"error":"nope"}`))
	if apperr.KindOf(err) != apperr.KindUnsupported {
		t.Errorf("kind = %v, want unsupported", apperr.KindOf(err))
	}

	err = DecodeError(http.StatusBadGateway, []byte("upstream gone"))
	if apperr.KindOf(err) != apperr.KindIO || err.Error() != "upstream gone" {
		t.Errorf("got %v (%v)", err, apperr.KindOf(err))
	}

	err = DecodeError(http.StatusNotFound, nil)
	if err.Error() != "Not Found" {
		t.Errorf("message = %q", err.Error())
	}
}
