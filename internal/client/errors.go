package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/takuphilchan/alezia-client/pkg/api"
)

var (
	// ErrCircuitOpen is wrapped by TransportError while the breaker rejects calls
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrNotResolved means the handle had no endpoint to call
	ErrNotResolved = errors.New("backend endpoint not resolved")
)

// RemoteError is a non-2xx answer from the backend. Detail carries the
// backend's {detail} envelope when it sent one.
type RemoteError struct {
	StatusCode int
	Detail     string
	Method     string
	Path       string
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// NotFound reports whether the backend answered 404
func (e *RemoteError) NotFound() bool {
	return e != nil && e.StatusCode == 404
}

// TransportError means no response was received at all
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AsRemoteError returns the RemoteError if the error chain contains one
func AsRemoteError(err error) *RemoteError {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr
	}
	return nil
}

// AsTransportError returns the TransportError if the error chain contains one
func AsTransportError(err error) *TransportError {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr
	}
	return nil
}

// IsTransport reports whether err means the backend could not be reached
func IsTransport(err error) bool {
	return AsTransportError(err) != nil
}

// newRemoteError builds a RemoteError from an error response body
func newRemoteError(method, path string, status int, body []byte) *RemoteError {
	return &RemoteError{
		StatusCode: status,
		Detail:     parseDetail(body),
		Method:     method,
		Path:       path,
	}
}

// parseDetail extracts the detail field of an error envelope.
// FastAPI validation errors carry a list of {loc, msg}; those are flattened.
func parseDetail(body []byte) string {
	var envelope api.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	raw := bytes.TrimSpace(envelope.Detail)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			loc := make([]string, 0, len(item.Loc))
			for _, l := range item.Loc {
				if s := fmt.Sprint(l); s != "body" {
					loc = append(loc, s)
				}
			}
			if len(loc) > 0 {
				parts = append(parts, strings.Join(loc, ".")+": "+item.Msg)
			} else {
				parts = append(parts, item.Msg)
			}
		}
		return strings.Join(parts, "; ")
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err == nil {
		return compact.String()
	}
	return string(raw)
}
