// Package hrlookup implements recruiter-contact providers. Adapters
// only ever return addresses their provider actually found; guessing
// and pattern construction are forbidden, a miss is domain.ErrNotFound.
package hrlookup

import "strings"

// hrTitleWords mark a position as talent/recruiting rather than a
// random employee of the company.
var hrTitleWords = []string{
	"recruit", "talent", "people", "human resources", "hr ", "hiring",
	"staffing", "people operations",
}

func isHRTitle(title string) bool {
	t := strings.ToLower(title)
	for _, w := range hrTitleWords {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}

func fullName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
