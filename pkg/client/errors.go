package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies submission and query failures.
type ErrorKind string

const (
	// KindRejected means the node refused the request; Code carries its reason.
	KindRejected ErrorKind = "rejected"

	// KindUnreachable means the endpoint could not be reached or failed
	// internally.
	KindUnreachable ErrorKind = "unreachable"

	// KindTimeout means no response arrived within the configured timeout.
	KindTimeout ErrorKind = "timeout"

	// KindMalformedResponse means the node answered with a body that does
	// not match the expected shape or schema.
	KindMalformedResponse ErrorKind = "malformed_response"
)

// SubmitError is returned by Submit. Submissions are never retried.
type SubmitError struct {
	Kind ErrorKind
	Code string
	Err  error
}

func (e *SubmitError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("submit %s (%s): %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("submit %s: %v", e.Kind, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// QueryError is returned by QueryAll.
type QueryError struct {
	Kind ErrorKind
	Code string
	Err  error
}

func (e *QueryError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("query %s (%s): %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("query %s: %v", e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// IsSubmitError reports whether err is a *SubmitError of the given kind.
func IsSubmitError(err error, kind ErrorKind) bool {
	var se *SubmitError
	return errors.As(err, &se) && se.Kind == kind
}

// IsQueryError reports whether err is a *QueryError of the given kind.
func IsQueryError(err error, kind ErrorKind) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Kind == kind
}

// transportKind classifies an error from http.Client.Do.
func transportKind(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindUnreachable
}
