package invoke

import (
	"context"
	"errors"
	"strings"
)

// Class categorizes a failure for retry purposes.
type Class int

const (
	// Retryable indicates a transient failure worth another attempt.
	Retryable Class = iota
	// Fatal indicates a failure no retry can fix.
	Fatal
)

// String returns a human-readable representation of the class.
func (c Class) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ErrTimeout marks an attempt that exceeded the policy timeout.
var ErrTimeout = errors.New("unit of work timed out")

// retryableMarkers are substrings of network-transport failures.
var retryableMarkers = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"timed out",
	"deadline exceeded",
	"rate limit",
	"too many requests",
	"429",
	"502",
	"503",
	"temporarily unavailable",
	"busy",
	"overloaded",
	"no route to host",
	"network is unreachable",
	"eof",
}

// fatalMarkers are substrings of malformed-input failures that retrying
// cannot fix. Fatal markers win over retryable ones.
var fatalMarkers = []string{
	"permission denied",
	"access denied",
	"unauthorized",
	"forbidden",
	"not found",
	"no such file",
	"no such container",
	"does not exist",
	"parse error",
	"syntax error",
	"invalid argument",
	"malformed",
}

// Classify decides whether an error is worth retrying. Timeouts and
// cancelled contexts are transient; input and permission problems are
// fatal; anything unrecognized defaults to retryable so a flaky
// environment gets the benefit of the doubt.
func Classify(err error) Class {
	if err == nil {
		return Retryable
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return Retryable
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return Fatal
		}
	}
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return Retryable
		}
	}
	return Retryable
}

// Hint returns a concrete remediation for the error, suitable for
// surfacing to the user alongside the failure itself.
func Hint(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return "the step exceeded its timeout; increase retry.timeout or simplify the task"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "access denied"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "forbidden"):
		return "check credentials and repository permissions"
	case strings.Contains(msg, "not found"),
		strings.Contains(msg, "no such file"),
		strings.Contains(msg, "does not exist"):
		return "check that the referenced resource exists"
	case strings.Contains(msg, "parse error"), strings.Contains(msg, "syntax error"), strings.Contains(msg, "malformed"):
		return "check the input for syntax errors"
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"), strings.Contains(msg, "429"):
		return "rate limited; wait before retrying"
	default:
		return "check network connectivity and retry"
	}
}
