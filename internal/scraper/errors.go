package scraper

import (
	"errors"
	"fmt"
)

var (
	// ErrPolicyNotFound signals that no privacy-policy URL could be discovered.
	ErrPolicyNotFound = errors.New("privacy policy not found")
	// ErrExtractionFailed wraps any fetch or parse failure while extracting text.
	ErrExtractionFailed = errors.New("text extraction failed")
	// ErrShortContent signals extracted text below the minimum viable length.
	ErrShortContent = errors.New("extracted text too short")
	// ErrParse signals HTML that could not be parsed at all.
	ErrParse = errors.New("parse html")
	// ErrInvalidSite signals an input that cannot be turned into a URL.
	ErrInvalidSite = errors.New("invalid site")
	// ErrQueueClosed is returned by Dequeue once a closed queue is drained.
	ErrQueueClosed = errors.New("queue closed")
)

// TransportError covers connection, DNS, TLS, and timeout failures.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatusError is returned for a GET answered with a non-2xx status.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}
