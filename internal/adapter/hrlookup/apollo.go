package hrlookup

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/config"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// Apollo uses the apollo.io people-search API, searching recruiting
// titles at the company by name. Apollo masks addresses the account has
// not unlocked; masked rows are treated as misses, never reconstructed.
type Apollo struct {
	apiKey  string
	baseURL string
	rc      *resty.Client
}

// NewApollo builds the adapter. A custom baseURL is used by tests.
func NewApollo(cfg config.Config, baseURL string) *Apollo {
	if baseURL == "" {
		baseURL = "https://api.apollo.io/v1"
	}
	return &Apollo{
		apiKey:  cfg.ApolloAPIKey,
		baseURL: baseURL,
		rc:      resty.New().SetTimeout(cfg.HRProviderTimeout),
	}
}

// Name returns the provider id recorded as the contact source.
func (a *Apollo) Name() string { return "apollo" }

type apolloResponse struct {
	People []struct {
		Name        string `json:"name"`
		Title       string `json:"title"`
		Email       string `json:"email"`
		EmailStatus string `json:"email_status"`
	} `json:"people"`
}

// Find searches recruiting people at the company.
func (a *Apollo) Find(ctx domain.Context, company, role, companyDomain string) (domain.HRContact, error) {
	body := map[string]any{
		"q_organization_name": company,
		"person_titles": []string{
			"recruiter", "technical recruiter", "talent acquisition",
			"head of people", "hr manager",
		},
		"page":     1,
		"per_page": 10,
	}

	var out apolloResponse
	start := time.Now()
	resp, err := a.rc.R().
		SetContext(ctx).
		SetHeader("X-Api-Key", a.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		Post(a.baseURL + "/mixed_people/search")
	observability.ProviderRequestDuration.WithLabelValues(a.Name(), "people_search").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RecordAPIUsage(a.Name(), "people_search", false)
		return domain.HRContact{}, fmt.Errorf("op=apollo.find company=%s: %w", company, err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		observability.RecordAPIUsage(a.Name(), "people_search", false)
		return domain.HRContact{}, fmt.Errorf("op=apollo.find company=%s: %w", company, domain.ErrUpstreamRateLimit)
	}
	if resp.IsError() {
		observability.RecordAPIUsage(a.Name(), "people_search", false)
		return domain.HRContact{}, fmt.Errorf("op=apollo.find company=%s: status %d", company, resp.StatusCode())
	}
	observability.RecordAPIUsage(a.Name(), "people_search", true)

	for _, p := range out.People {
		if p.Email == "" || strings.HasPrefix(p.Email, "email_not_unlocked") {
			continue
		}
		c := domain.HRContact{
			Name:   p.Name,
			Email:  p.Email,
			Title:  p.Title,
			Source: a.Name(),
		}
		if p.EmailStatus == "verified" {
			c.Verified = true
			c.Confidence = 0.95
		} else {
			c.Confidence = 0.7
		}
		slog.Debug("apollo contact found",
			slog.String("company", company),
			slog.Bool("verified", c.Verified))
		return c, nil
	}
	return domain.HRContact{}, fmt.Errorf("op=apollo.find company=%s: no unlocked addresses: %w", company, domain.ErrNotFound)
}
