package enricher

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrTimeout indicates a fetch that did not complete within its deadline.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrStatus indicates a response outside the 2xx range.
type ErrStatus struct {
	Code   int
	Status string
}

func (e ErrStatus) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.Code, e.Status)
}

// ErrTransport indicates any other failure to obtain a response,
// including URLs that cannot be requested at all.
type ErrTransport struct {
	Err error
}

func (e ErrTransport) Error() string {
	return fmt.Errorf("transport: %w", e.Err).Error()
}

func (e ErrTransport) Unwrap() error {
	return e.Err
}

// ErrScrapeFailed is returned by Scraper.Scrape once every candidate URL has failed.
type ErrScrapeFailed struct {
	URL      string
	Attempts []error // One entry per candidate, in candidate order
}

func (e *ErrScrapeFailed) Error() string {
	return fmt.Sprintf("Failed to scrape %s after trying multiple variations", e.URL)
}

func (e *ErrScrapeFailed) Unwrap() []error {
	return e.Attempts
}

// classifyFetchError wraps a client error into the fetch taxonomy
func classifyFetchError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	return ErrTransport{Err: err}
}

// ErrorTypeLabel returns a short, metric-friendly label for a fetch error.
func ErrorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var status ErrStatus
	if errors.As(err, &status) {
		switch {
		case status.Code == 404:
			return "not_found"
		case status.Code == 403:
			return "forbidden"
		case status.Code == 429:
			return "rate_limited"
		case status.Code >= 500:
			return "server_error"
		}
		return "status"
	}
	var transport ErrTransport
	if errors.As(err, &transport) {
		return "transport"
	}
	return "other"
}
