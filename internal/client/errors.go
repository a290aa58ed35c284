package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Kind classifies a failed backend call.
type Kind string

const (
	KindTimeout           Kind = "timeout"
	KindConnectionRefused Kind = "connection_refused"
	KindCanceled          Kind = "canceled"
	KindStatus            Kind = "status"
	KindTransport         Kind = "transport"
)

// ErrRedirectOffHost is returned when a relaxed TLS request is redirected away
// from the internal API host.
var ErrRedirectOffHost = errors.New("redirect leaves internal API host")

// FetchError is returned for backend calls that did not produce a usable
// response. StatusCode is set only for KindStatus.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("backend %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("backend %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsKind reports whether err is a FetchError of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

// StatusError builds a KindStatus FetchError.
func StatusError(url string, status int) *FetchError {
	return &FetchError{Kind: KindStatus, URL: url, StatusCode: status}
}

// classify maps a transport error to a FetchError.
func classify(url string, err error) *FetchError {
	kind := KindTransport
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindCanceled
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = KindConnectionRefused
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &FetchError{Kind: kind, URL: url, Err: err}
}
