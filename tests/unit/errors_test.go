package unit_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	dsync "github.com/Bloby22/dsync"
)

// TestRateLimitErrorMessage tests the error text for both quota scopes.
func TestRateLimitErrorMessage(t *testing.T) {
	t.Parallel()

	global := &dsync.RateLimitError{Scope: dsync.ScopeGlobal, RetryAfter: 5 * time.Second}
	if !strings.Contains(global.Error(), "globally") {
		t.Errorf("global error message = %q, should name the global scope", global.Error())
	}

	bucket := &dsync.RateLimitError{Scope: dsync.ScopeBucket, Bucket: "abc", RetryAfter: time.Second}
	if !strings.Contains(bucket.Error(), "abc") {
		t.Errorf("bucket error message = %q, should name the bucket", bucket.Error())
	}
}

// TestCloseErrorMessage tests that close errors carry the code and reason.
func TestCloseErrorMessage(t *testing.T) {
	t.Parallel()

	err := &dsync.CloseError{Code: dsync.CloseAuthenticationFailed, Reason: "Authentication failed."}
	if !strings.Contains(err.Error(), "4004") {
		t.Errorf("error message = %q, should contain the close code", err.Error())
	}
	if !strings.Contains(err.Error(), "Authentication failed.") {
		t.Errorf("error message = %q, should contain the reason", err.Error())
	}
}

// TestConnectionErrorUnwrap tests that the reconnect failure exposes its
// cause to errors.Is.
func TestConnectionErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: connection refused")
	err := &dsync.ConnectionError{Attempts: 5, Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("ConnectionError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "5 attempts") {
		t.Errorf("error message = %q, should carry the attempt count", err.Error())
	}
}

// TestSentinelErrorsAreDistinct tests that the package sentinels never alias.
func TestSentinelErrorsAreDistinct(t *testing.T) {
	t.Parallel()

	sentinels := []error{
		dsync.ErrZombied,
		dsync.ErrMalformedFrame,
		dsync.ErrNotConnected,
		dsync.ErrAlreadyOpen,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("sentinel %v aliases %v", a, b)
			}
		}
	}
}

// TestErrorWrapping tests that wrapped sentinels survive fmt verbs.
func TestErrorWrapping(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("reading frame: %w", dsync.ErrMalformedFrame)
	if !errors.Is(wrapped, dsync.ErrMalformedFrame) {
		t.Error("wrapped sentinel lost its identity")
	}
}
