package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// Kind is the closed set of failure categories produced at I/O
// boundaries. Callers switch on Kind instead of matching error text.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindNetwork
	KindHTTP
	KindAuth
	KindRateLimit
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind   Kind
	Status int
	err    error
}

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, err: err}
}

func NewHTTP(status int, err error) *Error {
	kind := KindHTTP

	switch {
	case status == 401 || status == 403:
		kind = KindAuth
	case status == 429:
		kind = KindRateLimit
	}

	return &Error{Kind: kind, Status: status, err: err}
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.Status, e.err)
	}

	return fmt.Sprintf("%s: %v", e.Kind, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// KindOf extracts the category of err, classifying raw transport errors
// that were not tagged at their origin.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}

	return KindUnknown
}

// Retryable reports whether err is worth another attempt. HTTP errors
// here are server-side (5xx); auth and cancellation are terminal.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindNetwork, KindRateLimit, KindHTTP:
		return true
	default:
		return false
	}
}
