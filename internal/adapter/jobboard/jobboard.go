// Package jobboard implements job-search providers. Each adapter
// normalises its board's schema into domain.JobPosting; aggregation,
// dedup and scoring happen in the usecase layer.
package jobboard

import (
	"fmt"
	"strings"
	"time"
)

// parseTime accepts the timestamp shapes the boards actually emit.
func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// formatSalary renders a min/max pair the way postings display it.
// Zero bounds are omitted; both zero means no salary disclosed.
func formatSalary(currency string, min, max float64) string {
	prefix := ""
	if currency != "" {
		prefix = currency + " "
	}
	switch {
	case min > 0 && max > 0 && min != max:
		return fmt.Sprintf("%s%.0f-%.0f", prefix, min, max)
	case max > 0:
		return fmt.Sprintf("%s%.0f", prefix, max)
	case min > 0:
		return fmt.Sprintf("%s%.0f", prefix, min)
	}
	return ""
}

func defaultLimit(n int) int {
	if n <= 0 {
		return 10
	}
	if n > 20 {
		return 20
	}
	return n
}
