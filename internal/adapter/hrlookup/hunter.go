package hrlookup

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/config"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// Hunter uses the hunter.io domain-search API. Hunter reports a numeric
// confidence per address and a verification status, which map directly
// onto the contact acceptance rule.
type Hunter struct {
	apiKey  string
	baseURL string
	rc      *resty.Client
}

// NewHunter builds the adapter. A custom baseURL is used by tests.
func NewHunter(cfg config.Config, baseURL string) *Hunter {
	if baseURL == "" {
		baseURL = "https://api.hunter.io/v2"
	}
	return &Hunter{
		apiKey:  cfg.HunterAPIKey,
		baseURL: baseURL,
		rc:      resty.New().SetTimeout(cfg.HRProviderTimeout),
	}
}

// Name returns the provider id recorded as the contact source.
func (h *Hunter) Name() string { return "hunter" }

type hunterResponse struct {
	Data struct {
		Emails []struct {
			Value        string `json:"value"`
			FirstName    string `json:"first_name"`
			LastName     string `json:"last_name"`
			Position     string `json:"position"`
			Confidence   int    `json:"confidence"`
			Verification struct {
				Status string `json:"status"`
			} `json:"verification"`
		} `json:"emails"`
	} `json:"data"`
}

// Find searches the company domain for a recruiting contact. HR-titled
// people win over others; within a group the highest confidence wins.
func (h *Hunter) Find(ctx domain.Context, company, role, companyDomain string) (domain.HRContact, error) {
	params := map[string]string{"api_key": h.apiKey, "limit": "10"}
	if companyDomain != "" {
		params["domain"] = companyDomain
	} else {
		params["company"] = company
	}

	var out hunterResponse
	start := time.Now()
	resp, err := h.rc.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get(h.baseURL + "/domain-search")
	observability.ProviderRequestDuration.WithLabelValues(h.Name(), "domain_search").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RecordAPIUsage(h.Name(), "domain_search", false)
		return domain.HRContact{}, fmt.Errorf("op=hunter.find company=%s: %w", company, err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		observability.RecordAPIUsage(h.Name(), "domain_search", false)
		return domain.HRContact{}, fmt.Errorf("op=hunter.find company=%s: %w", company, domain.ErrUpstreamRateLimit)
	}
	if resp.StatusCode() == http.StatusNotFound {
		observability.RecordAPIUsage(h.Name(), "domain_search", true)
		return domain.HRContact{}, fmt.Errorf("op=hunter.find company=%s: %w", company, domain.ErrNotFound)
	}
	if resp.IsError() {
		observability.RecordAPIUsage(h.Name(), "domain_search", false)
		return domain.HRContact{}, fmt.Errorf("op=hunter.find company=%s: status %d", company, resp.StatusCode())
	}
	observability.RecordAPIUsage(h.Name(), "domain_search", true)

	best := domain.HRContact{}
	bestHR := false
	for _, e := range out.Data.Emails {
		if e.Value == "" {
			continue
		}
		c := domain.HRContact{
			Name:       fullName(e.FirstName, e.LastName),
			Email:      e.Value,
			Title:      e.Position,
			Confidence: float64(e.Confidence) / 100,
			Source:     h.Name(),
			Verified:   e.Verification.Status == "valid",
		}
		hr := isHRTitle(e.Position)
		switch {
		case best.Email == "":
		case hr && !bestHR:
		case hr == bestHR && c.Confidence > best.Confidence:
		default:
			continue
		}
		best, bestHR = c, hr
	}
	if best.Email == "" {
		return domain.HRContact{}, fmt.Errorf("op=hunter.find company=%s: no addresses: %w", company, domain.ErrNotFound)
	}
	slog.Debug("hunter contact found",
		slog.String("company", company),
		slog.Bool("hr_title", bestHR),
		slog.Bool("verified", best.Verified))
	return best, nil
}
