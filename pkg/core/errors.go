package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind classifies why an upstream model call failed.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindAuth           Kind = "auth"
	KindNotFound       Kind = "not_found"
	KindRateLimited    Kind = "rate_limited"
	KindOverloaded     Kind = "overloaded"
	KindUpstream       Kind = "upstream"
	KindUnconfigured   Kind = "unconfigured"
	KindTransport      Kind = "transport"
	KindUnknown        Kind = "unknown"
)

// Error is returned by providers and the Engine.
type Error struct {
	Kind       Kind
	Provider   string
	Message    string
	Status     int
	Code       string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d", e.Status)
		if e.Code != "" {
			fmt.Fprintf(&b, ", code %s", e.Code)
		}
		b.WriteByte(')')
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary reports whether the same request may succeed later.
func (e *Error) Temporary() bool {
	switch e.Kind {
	case KindRateLimited, KindOverloaded, KindUpstream, KindTransport:
		return true
	}
	return false
}

// KindForStatus maps an upstream HTTP status code.
func KindForStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindInvalidRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusServiceUnavailable, 529:
		return KindOverloaded
	}
	if status >= 500 {
		return KindUpstream
	}
	return KindUnknown
}

// StatusError builds an Error from a non-2xx upstream response.
func StatusError(provider string, status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Kind: KindForStatus(status), Provider: provider, Message: message, Status: status}
}

// TransportError wraps a failure that happened before a response was read,
// typically from an SDK client.
func TransportError(provider string, err error) *Error {
	return &Error{Kind: KindTransport, Provider: provider, Message: err.Error(), Err: err}
}

func invalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain. Context errors
// report as KindTransport.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransport
	}
	return KindUnknown
}
