package domain

import "time"

// JobQuery is the parsed form of a free-text job search.
type JobQuery struct {
	Title       string `json:"title"`
	Location    string `json:"location,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Limit       int    `json:"-"`
}

// JobPosting is a normalised posting from any board. After aggregation
// postings are read-only; no component mutates one it did not produce.
type JobPosting struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Company        string     `json:"company"`
	Location       string     `json:"location,omitempty"`
	Salary         string     `json:"salary,omitempty"`
	Type           string     `json:"type,omitempty"`
	Description    string     `json:"description"`
	Requirements   []string   `json:"requirements,omitempty"`
	Sources        []string   `json:"sources"`
	ApplicationURL string     `json:"application_url,omitempty"`
	PostedDate     *time.Time `json:"posted_date,omitempty"`
	MatchScore     int        `json:"match_score"`
	Contact        *HRContact `json:"contact,omitempty"`
}

// Contact sources that never carry a usable address on their own.
const (
	ContactSourceGuess       = "guess"
	ContactSourceLLM         = "llm"
	ContactSourceConstructed = "constructed"
	ContactSourceNotFound    = "not_found"
)

// HRContact is a recruiter contact candidate for one company/role.
// Invariant: a persisted contact has a non-empty Email.
type HRContact struct {
	Name       string  `json:"name,omitempty"`
	Email      string  `json:"email"`
	Title      string  `json:"title,omitempty"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	Verified   bool    `json:"verified"`
}

// Acceptable reports whether the contact may ever receive mail: the
// address is present and either provider-verified, or confident enough
// and not from a fabricating source.
func (c HRContact) Acceptable() bool {
	if c.Email == "" {
		return false
	}
	if c.Verified {
		return true
	}
	return c.Confidence >= 0.5 && !fabricatedSource(c.Source)
}

// Stale reports whether a stored contact must be re-resolved before a
// send: missing address, low confidence, or a fabricating source.
func (c HRContact) Stale() bool {
	if c.Email == "" || c.Confidence < 0.5 {
		return true
	}
	return fabricatedSource(c.Source) || c.Source == ContactSourceNotFound
}

func fabricatedSource(s string) bool {
	switch s {
	case ContactSourceGuess, ContactSourceLLM, ContactSourceConstructed:
		return true
	}
	return false
}
