package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/germanygsg/taurimedrec/internal/apperr"
	"github.com/germanygsg/taurimedrec/internal/monitoring"
)

var logf = monitoring.Prefixed("http")

// ErrorBody is the JSON shape of every error response. Kind is the
// apperr.Kind name so clients can branch without parsing Error.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// WriteJSONError writes a JSON error response with the given status code and message.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes a successful JSON response (200 OK).
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

// StatusForKind maps a failure kind to its HTTP status.
func StatusForKind(k apperr.Kind) int {
	switch k {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConstraint:
		return http.StatusConflict
	case apperr.KindUnsupported:
		return http.StatusNotImplemented
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err with the status for its kind. The message is the
// error's full text.
func WriteError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	WriteJSON(w, StatusForKind(kind), ErrorBody{Error: apperr.Message(err), Kind: kind.String()})
}

// DecodeError turns an error response body back into an apperr error. Bodies
// that are not ErrorBody JSON keep their raw text as the message.
func DecodeError(status int, body []byte) error {
	var eb ErrorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error == "" {
		msg := string(body)
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &apperr.Error{Kind: kindForStatus(status), Err: errors.New(msg)}
	}
	kind := apperr.ParseKind(eb.Kind)
	if eb.Kind == "" {
		kind = kindForStatus(status)
	}
	return &apperr.Error{Kind: kind, Err: errors.New(eb.Error)}
}

func kindForStatus(status int) apperr.Kind {
	switch status {
	case http.StatusNotFound:
		return apperr.KindNotFound
	case http.StatusConflict:
		return apperr.KindConstraint
	case http.StatusNotImplemented:
		return apperr.KindUnsupported
	case http.StatusBadRequest, http.StatusMethodNotAllowed:
		return apperr.KindInvalidArgument
	default:
		return apperr.KindIO
	}
}

// MethodNotAllowed writes a 405 Method Not Allowed response.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// BadRequest writes a 400 Bad Request response with the given message.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

// NotFound writes a 404 Not Found response.
func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}
