package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorConstants(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ErrInvalidArgument", ErrInvalidArgument, "invalid argument"},
		{"ErrNotFound", ErrNotFound, "not found"},
		{"ErrConflict", ErrConflict, "conflict"},
		{"ErrRateLimited", ErrRateLimited, "rate limited"},
		{"ErrUpstreamTimeout", ErrUpstreamTimeout, "upstream timeout"},
		{"ErrUpstreamRateLimit", ErrUpstreamRateLimit, "upstream rate limit"},
		{"ErrQuotaExceeded", ErrQuotaExceeded, "quota exhausted"},
		{"ErrAuthRevoked", ErrAuthRevoked, "auth revoked"},
		{"ErrProviderDisabled", ErrProviderDisabled, "provider disabled"},
		{"ErrSchemaInvalid", ErrSchemaInvalid, "schema invalid"},
		{"ErrInternal", ErrInternal, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Expected %s to be %q, got %q", tt.name, tt.expected, tt.err.Error())
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		target   error
		expected bool
	}{
		{"ErrQuotaExceeded is ErrQuotaExceeded", ErrQuotaExceeded, ErrQuotaExceeded, true},
		{"ErrAuthRevoked is ErrAuthRevoked", ErrAuthRevoked, ErrAuthRevoked, true},
		{"wrapped ErrNotFound is ErrNotFound", fmt.Errorf("op=get: %w", ErrNotFound), ErrNotFound, true},
		{"wrapped ErrQuotaExceeded is ErrQuotaExceeded", fmt.Errorf("op=invoke: %w", ErrQuotaExceeded), ErrQuotaExceeded, true},
		{"ErrInvalidArgument is not ErrNotFound", ErrInvalidArgument, ErrNotFound, false},
		{"ErrQuotaExceeded is not ErrRateLimited", ErrQuotaExceeded, ErrRateLimited, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if errors.Is(tt.err, tt.target) != tt.expected {
				t.Errorf("Expected errors.Is(%v, %v) to be %v, got %v", tt.err, tt.target, tt.expected, !tt.expected)
			}
		})
	}
}

func TestSendErrorUnwrap(t *testing.T) {
	cause := errors.New("invalid_grant")
	err := &SendError{Kind: SendFailureTokenRevoked, Guidance: "reconnect your mailbox", Err: cause}

	if !errors.Is(err, cause) {
		t.Errorf("Expected SendError to unwrap to its cause")
	}
	var se *SendError
	if !errors.As(error(err), &se) {
		t.Fatalf("Expected errors.As to match *SendError")
	}
	if se.Kind != SendFailureTokenRevoked {
		t.Errorf("Expected kind token_revoked, got %q", se.Kind)
	}
	if err.Error() == "" {
		t.Errorf("Expected non-empty error text")
	}
}
