package listings

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FormatError reports that the source claimed success and returned non-empty
// content the client could not parse. This is the signature of an upstream
// markup or schema change and must never be absorbed as "no data".
type FormatError struct {
	URL        string
	StatusCode int
	BodySize   int
	Err        error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unexpected result format from %s (status %d, %d bytes): %v",
		e.URL, e.StatusCode, e.BodySize, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// ZIPNotFoundError reports that the source does not recognize a ZIP code at
// all (HTTP not-found). Distinct from a recognized ZIP with zero results: it
// usually means the ZIP registry contains something unaddressable, like a
// postal distribution center.
type ZIPNotFoundError struct {
	ZIP string
	URL string
}

func (e *ZIPNotFoundError) Error() string {
	return fmt.Sprintf("zip %s not recognized by listings source (%s)", e.ZIP, e.URL)
}

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrBlocked indicates the source refused the request (HTTP 403 or 429),
// which in practice means the anti-scraping defenses triggered.
type ErrBlocked struct {
	StatusCode int
	Err        error
}

func (e ErrBlocked) Error() string {
	return fmt.Errorf("blocked (status %d): %w", e.StatusCode, e.Err).Error()
}

func (e ErrBlocked) Unwrap() error {
	return e.Err
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode == 403 || statusCode == 429 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		return ErrBlocked{StatusCode: statusCode, Err: wrapped}
	}

	return err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var blocked ErrBlocked
	if errors.As(err, &blocked) {
		return "blocked"
	}
	var notFound *ZIPNotFoundError
	if errors.As(err, &notFound) {
		return "zip_not_found"
	}
	var format *FormatError
	if errors.As(err, &format) {
		return "format"
	}
	return "other"
}
