package service

import (
	"errors"
	"fmt"
)

// ErrFileNotFound is returned when the backend answers 404 for a file or asset.
var ErrFileNotFound = errors.New("file not found")

// ValidationError reports a missing or malformed request parameter. It is
// detected before any backend call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthError reports a missing or rejected credential.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "unauthorized: " + e.Reason }

// PermissionError reports an authenticated caller lacking a required grant.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string { return "forbidden: " + e.Reason }

// UpstreamStatusError reports a non-2xx backend answer other than 404.
type UpstreamStatusError struct {
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// UpstreamProtocolError reports an HTML page where a file was expected, such
// as an application error page or a login screen served with 200.
type UpstreamProtocolError struct {
	ContentType string
	Title       string
}

func (e *UpstreamProtocolError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("backend returned %s instead of a file (page title %q)", e.ContentType, e.Title)
	}
	return fmt.Sprintf("backend returned %s instead of a file", e.ContentType)
}

// DecodeError reports a backend payload matching none of the known shapes.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode backend payload: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }
