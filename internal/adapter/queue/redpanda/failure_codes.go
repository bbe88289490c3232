package redpanda

import "strings"

// classifyFailureCode maps a task error message to a stable code for
// logs. The strings mirror the domain sentinel texts so worker logs and
// API error codes line up.
func classifyFailureCode(msg string) string {
	s := strings.ToLower(strings.TrimSpace(msg))
	if s == "" {
		return "INTERNAL"
	}
	switch {
	case strings.Contains(s, "schema invalid"),
		strings.Contains(s, "invalid json"):
		return "SCHEMA_INVALID"
	case strings.Contains(s, "rate limit"):
		return "UPSTREAM_RATE_LIMIT"
	case strings.Contains(s, "timeout"),
		strings.Contains(s, "deadline exceeded"):
		return "UPSTREAM_TIMEOUT"
	case strings.Contains(s, "quota exhausted"):
		return "QUOTA_EXCEEDED"
	case strings.Contains(s, "not found"):
		return "NOT_FOUND"
	case strings.Contains(s, "invalid argument"):
		return "INVALID_ARGUMENT"
	default:
		return "INTERNAL"
	}
}
