package domain

import (
	"strings"
	"time"
)

// RetryStatus tracks where a failed parse task sits in the retry flow.
type RetryStatus string

const (
	RetryStatusRetrying RetryStatus = "retrying"
	RetryStatusDLQ      RetryStatus = "dlq"
)

// RetryConfig drives the queue's failure handling: exponential backoff
// between re-enqueues and substring-based error classification. Error
// messages carry the sentinel text through fmt.Errorf wrapping, so
// matching on substrings classifies wrapped errors without unwrapping.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	// RetryableErrors force a retry; NonRetryableErrors force parking.
	// Unmatched errors default to retryable.
	RetryableErrors    []string
	NonRetryableErrors []string
}

// DefaultRetryConfig classifies errors along the sentinel taxonomy:
// transient upstream trouble retries, caller mistakes and exhausted
// budgets park immediately.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryableErrors: []string{
			"context deadline exceeded",
			"connection refused",
			"timeout",
			"temporary failure",
			ErrRateLimited.Error(),
			ErrUpstreamTimeout.Error(),
			ErrUpstreamRateLimit.Error(),
		},
		NonRetryableErrors: []string{
			ErrInvalidArgument.Error(),
			ErrNotFound.Error(),
			ErrConflict.Error(),
			ErrSchemaInvalid.Error(),
			ErrQuotaExceeded.Error(),
		},
	}
}

// RetryInfo is one task's retry journal, carried on the DLQ record for
// operators inspecting parked tasks.
type RetryInfo struct {
	AttemptCount  int
	MaxAttempts   int
	LastAttemptAt time.Time
	RetryStatus   RetryStatus
	LastError     string
	ErrorHistory  []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ShouldRetry reports whether the task gets another attempt. The
// retryable list wins over the non-retryable list when both match.
func (ri *RetryInfo) ShouldRetry(err error, cfg RetryConfig) bool {
	if ri.AttemptCount >= cfg.MaxRetries || ri.RetryStatus == RetryStatusDLQ {
		return false
	}
	msg := err.Error()
	for _, s := range cfg.RetryableErrors {
		if strings.Contains(msg, s) {
			return true
		}
	}
	for _, s := range cfg.NonRetryableErrors {
		if strings.Contains(msg, s) {
			return false
		}
	}
	return true
}

// CalculateNextRetryDelay grows the delay exponentially with the
// attempt count, capped at MaxDelay, plus 10% jitter when configured.
func (ri *RetryInfo) CalculateNextRetryDelay(cfg RetryConfig) time.Duration {
	delay := cfg.InitialDelay
	for i := 0; i < ri.AttemptCount; i++ {
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay >= cfg.MaxDelay {
			delay = cfg.MaxDelay
			break
		}
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter {
		delay += time.Duration(float64(delay) * 0.1)
	}
	return delay
}

// MarkAsDLQ records the hand-off to the dead-letter topic.
func (ri *RetryInfo) MarkAsDLQ() {
	ri.RetryStatus = RetryStatusDLQ
	ri.UpdatedAt = time.Now()
}

// DLQTask is the dead-letter record: the original payload plus enough
// journal to reprocess it by hand.
type DLQTask struct {
	TaskID           string
	OriginalPayload  ParseCVPayload
	RetryInfo        RetryInfo
	FailureReason    string
	MovedToDLQAt     time.Time
	CanBeReprocessed bool
}
