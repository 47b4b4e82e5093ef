package monitor

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"

	"github.com/fleetmon/fleetmon/internal/errors"
)

// FailureKind classifies why a connection could not be acquired.
type FailureKind int

const (
	// FailureInternal is anything not recognised as auth or transient.
	FailureInternal FailureKind = iota
	// FailureAuth means credentials are missing or were rejected.
	FailureAuth
	// FailureTransient is a network-level failure worth retrying on schedule.
	FailureTransient
)

func (k FailureKind) String() string {
	switch k {
	case FailureAuth:
		return "auth"
	case FailureTransient:
		return "transient"
	default:
		return "internal"
	}
}

var authMarkers = []string{
	"password",
	"authentication",
	"unable to authenticate",
	"no supported methods",
	"permission denied",
	"passphrase",
}

var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection refused",
	"network is unreachable",
	"host is unreachable",
	"host unreachable",
	"no route to host",
	"connection reset",
	"broken pipe",
}

// Classify decides whether err is an authentication problem, a transient
// network problem, or something else.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureInternal
	}
	if errors.IsCode(err, errors.ErrAuth) {
		return FailureAuth
	}

	text := strings.ToLower(failureText(err))
	for _, m := range authMarkers {
		if strings.Contains(text, m) {
			return FailureAuth
		}
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return FailureTransient
	}
	for _, m := range transientMarkers {
		if strings.Contains(text, m) {
			return FailureTransient
		}
	}
	return FailureInternal
}

// failureText joins the messages along err's chain without suggestions,
// which often mention passwords regardless of the actual failure.
func failureText(err error) string {
	var parts []string
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		if fe, ok := e.(*errors.Error); ok {
			parts = append(parts, fe.Message)
			continue
		}
		parts = append(parts, e.Error())
		break
	}
	return strings.Join(parts, ": ")
}

// DefaultRetryThreshold applies when Policy.RetryThreshold is below 1.
const DefaultRetryThreshold = 3

// Policy holds the configurable retry rules.
type Policy struct {
	// RetryThreshold is the retry count at which a manual retry is offered.
	// Values below 1 mean DefaultRetryThreshold; the signal cannot be disabled.
	RetryThreshold int
	// MaxAutoRetries suspends scheduled polling after this many consecutive
	// failures. Zero never suspends.
	MaxAutoRetries int
}

// NeedsManualRetry reports whether retryCount warrants offering a manual retry.
func (p Policy) NeedsManualRetry(retryCount int) bool {
	threshold := p.RetryThreshold
	if threshold < 1 {
		threshold = DefaultRetryThreshold
	}
	return retryCount >= threshold
}

// ShouldSuspend reports whether scheduled polling stops at retryCount.
func (p Policy) ShouldSuspend(retryCount int) bool {
	return p.MaxAutoRetries > 0 && retryCount >= p.MaxAutoRetries
}

// AcquireError is returned by Pool.Acquire with the failure classified.
type AcquireError struct {
	ServerID string
	Kind     FailureKind
	Err      error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("acquire %s (%s): %s", e.ServerID, e.Kind, errors.Summary(e.Err))
}

func (e *AcquireError) Unwrap() error { return e.Err }

// Message is the one-line cause, without the server id or kind.
func (e *AcquireError) Message() string {
	return errors.Summary(e.Err)
}
