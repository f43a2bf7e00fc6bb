package model

import (
	"context"
	"errors"
	"net/http"
)

// Orchestrator error taxonomy. Callers detect conditions with errors.Is.
var (
	// ErrServiceNotReady is returned when the supervised service never became stable within budget.
	ErrServiceNotReady = errors.New("service not ready")

	// ErrTimeout is returned when allocation polling or a request exceeded its budget.
	ErrTimeout = errors.New("timeout")

	// ErrInvalidState is returned for duplicate submissions or missing prerequisite records.
	ErrInvalidState = errors.New("invalid state")

	// ErrTransient wraps network level failures that survived the retry budget.
	ErrTransient = errors.New("transient i/o")

	// ErrRemoteRejected is returned when the remote service answered with a non-retryable status or error envelope.
	ErrRemoteRejected = errors.New("remote rejected")

	// ErrClosed is returned when work is enqueued after shutdown began.
	ErrClosed = errors.New("scheduler closed")
)

// ErrorKind is a coarse classification of an error
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindServiceNotReady ErrorKind = "ServiceNotReady"
	KindTimeout         ErrorKind = "Timeout"
	KindInvalidState    ErrorKind = "InvalidState"
	KindTransient       ErrorKind = "TransientIO"
	KindRemoteRejected  ErrorKind = "RemoteRejected"
	KindClosed          ErrorKind = "Closed"
	KindInternal        ErrorKind = "Internal"
)

// Kind classifies err
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrServiceNotReady):
		return KindServiceNotReady
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrRemoteRejected):
		return KindRemoteRejected
	case errors.Is(err, ErrClosed):
		return KindClosed
	}
	return KindInternal
}

// Retryable returns true when the caller may retry the same request later
func Retryable(err error) bool {
	switch Kind(err) {
	case KindServiceNotReady, KindTimeout, KindTransient:
		return true
	}
	return false
}

// HTTPStatus maps err to an HTTP status code
func HTTPStatus(err error) int {
	switch Kind(err) {
	case KindNone:
		return http.StatusOK
	case KindServiceNotReady, KindClosed:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindInvalidState:
		return http.StatusConflict
	case KindTransient, KindRemoteRejected:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
