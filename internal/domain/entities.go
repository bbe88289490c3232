// Package domain holds the entities, ports and error taxonomy the use
// cases are written against. It depends on nothing outside the standard
// library.
package domain

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrQuotaExceeded     = errors.New("quota exhausted")
	ErrAuthRevoked       = errors.New("auth revoked")
	ErrProviderDisabled  = errors.New("provider disabled")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")
)

// CVStatus tracks the background parse of an uploaded résumé.
type CVStatus string

const (
	CVQueued     CVStatus = "queued"
	CVProcessing CVStatus = "processing"
	CVReady      CVStatus = "ready"
	CVFailed     CVStatus = "failed"
)

// CV is an uploaded résumé file plus its parsed content once the
// background parse completes. Parsed is nil until Status is ready.
type CV struct {
	ID        string
	UserID    string
	Filename  string
	MIME      string
	Size      int64
	Path      string
	Status    CVStatus
	Error     string
	Parsed    *CVContent
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CVContent is the structured form of a résumé. Tailoring and scoring
// operate on this, never on the raw file.
type CVContent struct {
	FullName       string            `json:"full_name"`
	Email          string            `json:"email,omitempty"`
	Phone          string            `json:"phone,omitempty"`
	Location       string            `json:"location,omitempty"`
	Summary        string            `json:"summary,omitempty"`
	Skills         []string          `json:"skills,omitempty"`
	Experience     []ExperienceEntry `json:"experience,omitempty"`
	Education      []EducationEntry  `json:"education,omitempty"`
	Projects       []ProjectEntry    `json:"projects,omitempty"`
	Certifications []string          `json:"certifications,omitempty"`
	Languages      []string          `json:"languages,omitempty"`
}

type ExperienceEntry struct {
	Company   string   `json:"company"`
	Title     string   `json:"title"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
	Bullets   []string `json:"bullets,omitempty"`
}

type EducationEntry struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree,omitempty"`
	Field       string `json:"field,omitempty"`
	StartYear   string `json:"start_year,omitempty"`
	EndYear     string `json:"end_year,omitempty"`
}

type ProjectEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tech        []string `json:"tech,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// FlatText renders the CV as one lower-cased blob for keyword scans.
func (c CVContent) FlatText() string {
	var b strings.Builder
	b.WriteString(c.Summary)
	b.WriteByte('\n')
	b.WriteString(strings.Join(c.Skills, "\n"))
	b.WriteByte('\n')
	for _, e := range c.Experience {
		b.WriteString(e.Company)
		b.WriteByte(' ')
		b.WriteString(e.Title)
		b.WriteByte('\n')
		b.WriteString(strings.Join(e.Bullets, "\n"))
		b.WriteByte('\n')
	}
	for _, e := range c.Education {
		b.WriteString(e.Institution)
		b.WriteByte(' ')
		b.WriteString(e.Degree)
		b.WriteByte(' ')
		b.WriteString(e.Field)
		b.WriteByte('\n')
	}
	for _, p := range c.Projects {
		b.WriteString(p.Name)
		b.WriteByte(' ')
		b.WriteString(p.Description)
		b.WriteByte(' ')
		b.WriteString(strings.Join(p.Tech, " "))
		b.WriteByte('\n')
	}
	b.WriteString(strings.Join(c.Certifications, "\n"))
	return strings.ToLower(b.String())
}

// ExperienceYears estimates total years of experience from entry date
// ranges. Entries without a parseable start year contribute nothing;
// an open end date counts up to the current year. The estimate is
// deterministic for a fixed clock year, which scoring pins in tests.
func (c CVContent) ExperienceYears(nowYear int) float64 {
	var total float64
	for _, e := range c.Experience {
		start, ok := parseYear(e.StartDate)
		if !ok {
			continue
		}
		end, ok := parseYear(e.EndDate)
		if !ok {
			end = nowYear
		}
		if end < start {
			continue
		}
		total += float64(end - start)
	}
	return total
}

func parseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return 0, false
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil || y < 1950 || y > 2100 {
		return 0, false
	}
	return y, true
}

// TailoredCV is the per-job rewrite of a parsed CV.
// Invariant: ATSScore and MatchScore are within [0, 100].
type TailoredCV struct {
	ID          string
	UserID      string
	CVID        string
	JobID       string
	Content     CVContent
	CoverLetter string
	ATSScore    int
	MatchScore  int
	ChangeLog   []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Context is an alias to allow decoupling from std context in domain.
// Adapters and usecases pass context.Context through.
type Context = context.Context
