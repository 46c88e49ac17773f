package invoke

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"connection refused", errors.New("dial tcp: connection refused"), Retryable},
		{"connection reset", errors.New("read: connection reset by peer"), Retryable},
		{"timeout marker", errors.New("i/o timeout"), Retryable},
		{"timeout sentinel", ErrTimeout, Retryable},
		{"wrapped timeout sentinel", fmt.Errorf("step: %w", ErrTimeout), Retryable},
		{"deadline exceeded", context.DeadlineExceeded, Retryable},
		{"rate limit", errors.New("API rate limit exceeded"), Retryable},
		{"429", errors.New("unexpected status 429"), Retryable},
		{"503", errors.New("unexpected status 503 service unavailable"), Retryable},
		{"busy", errors.New("server busy, try again"), Retryable},
		{"permission denied", errors.New("open /etc/shadow: permission denied"), Fatal},
		{"unauthorized", errors.New("401 unauthorized"), Fatal},
		{"not found", errors.New("repository not found"), Fatal},
		{"no such file", errors.New("no such file or directory"), Fatal},
		{"parse error", errors.New("parse error at line 3"), Fatal},
		{"syntax error", errors.New("syntax error near unexpected token"), Fatal},
		{"unknown defaults retryable", errors.New("something odd happened"), Retryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassify_FatalWinsOverRetryable(t *testing.T) {
	// An error mentioning both shapes must be treated as fatal.
	err := errors.New("timeout waiting for file: no such file or directory")
	if got := Classify(err); got != Fatal {
		t.Errorf("Classify = %v, want Fatal", got)
	}
}

func TestHint(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"nil", nil, ""},
		{"timeout", ErrTimeout, "timeout"},
		{"credentials", errors.New("403 forbidden"), "credentials"},
		{"missing", errors.New("branch not found"), "exists"},
		{"syntax", errors.New("syntax error"), "syntax"},
		{"rate limit", errors.New("rate limit hit"), "rate limited"},
		{"network default", errors.New("connection refused"), "network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Hint(tt.err)
			if tt.contains == "" {
				if got != "" {
					t.Errorf("Hint(nil) = %q, want empty", got)
				}
				return
			}
			if !strings.Contains(got, tt.contains) {
				t.Errorf("Hint(%v) = %q, want substring %q", tt.err, got, tt.contains)
			}
		})
	}
}
