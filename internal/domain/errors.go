package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedEntry marks a raw entry that cannot become a valid Review.
// Malformed entries are skipped and counted, never written.
var ErrMalformedEntry = errors.New("malformed review entry")

// ErrorKind splits source failures into retryable and terminal.
type ErrorKind int

const (
	// Transient covers network errors, rate limits and 5xx responses;
	// the collector retries these within its attempt budget.
	Transient ErrorKind = iota
	// Permanent covers invalid app ids, auth failures and undecodable
	// payloads; retrying cannot help.
	Permanent
)

func (k ErrorKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

// SourceError is a classified failure from a marketplace fetch.
type SourceError struct {
	Kind   ErrorKind
	Source Source
	Op     string // e.g. "fetch reviews page"
	Status int    // HTTP status when one was received, else 0

	// RetryAfter carries a server-provided wait hint (Retry-After); the
	// collector uses it when it exceeds the computed backoff.
	RetryAfter time.Duration

	Err error
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("%s: %s (%s)", e.Source, e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SourceError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable source failure.
func IsTransient(err error) bool {
	var se *SourceError
	return errors.As(err, &se) && se.Kind == Transient
}

// RetryAfterHint extracts a server wait hint from err, or zero.
func RetryAfterHint(err error) time.Duration {
	var se *SourceError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}
