package hrlookup

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/config"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// Snov uses the snov.io prospect API. Snov authenticates with OAuth
// client credentials; the token is cached until shortly before expiry.
// Snov only searches by domain, so a posting without one is a miss.
type Snov struct {
	clientID     string
	clientSecret string
	baseURL      string
	rc           *resty.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewSnov builds the adapter. A custom baseURL is used by tests.
func NewSnov(cfg config.Config, baseURL string) *Snov {
	if baseURL == "" {
		baseURL = "https://api.snov.io"
	}
	return &Snov{
		clientID:     cfg.SnovClientID,
		clientSecret: cfg.SnovClientSecret,
		baseURL:      baseURL,
		rc:           resty.New().SetTimeout(cfg.HRProviderTimeout),
	}
}

// Name returns the provider id recorded as the contact source.
func (s *Snov) Name() string { return "snov" }

func (s *Snov) accessToken(ctx domain.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && time.Until(s.tokenExpiry) > time.Minute {
		return s.token, nil
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	resp, err := s.rc.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     s.clientID,
			"client_secret": s.clientSecret,
		}).
		SetResult(&out).
		Post(s.baseURL + "/v1/oauth/access_token")
	if err != nil {
		return "", fmt.Errorf("op=snov.token: %w", err)
	}
	if resp.IsError() || out.AccessToken == "" {
		return "", fmt.Errorf("op=snov.token: status %d", resp.StatusCode())
	}
	s.token = out.AccessToken
	s.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return s.token, nil
}

type snovResponse struct {
	Emails []struct {
		Email     string `json:"email"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Position  string `json:"position"`
		Status    string `json:"status"`
	} `json:"emails"`
}

// Find searches the company domain for a recruiting contact.
func (s *Snov) Find(ctx domain.Context, company, role, companyDomain string) (domain.HRContact, error) {
	if companyDomain == "" {
		return domain.HRContact{}, fmt.Errorf("op=snov.find company=%s: no domain to search: %w", company, domain.ErrNotFound)
	}
	token, err := s.accessToken(ctx)
	if err != nil {
		observability.RecordAPIUsage(s.Name(), "domain_search", false)
		return domain.HRContact{}, err
	}

	var out snovResponse
	start := time.Now()
	resp, err := s.rc.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(map[string]string{
			"domain": companyDomain,
			"type":   "all",
			"limit":  "10",
		}).
		SetResult(&out).
		Get(s.baseURL + "/v2/domain-emails-with-info")
	observability.ProviderRequestDuration.WithLabelValues(s.Name(), "domain_search").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RecordAPIUsage(s.Name(), "domain_search", false)
		return domain.HRContact{}, fmt.Errorf("op=snov.find company=%s: %w", company, err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		observability.RecordAPIUsage(s.Name(), "domain_search", false)
		return domain.HRContact{}, fmt.Errorf("op=snov.find company=%s: %w", company, domain.ErrUpstreamRateLimit)
	}
	if resp.IsError() {
		observability.RecordAPIUsage(s.Name(), "domain_search", false)
		return domain.HRContact{}, fmt.Errorf("op=snov.find company=%s: status %d", company, resp.StatusCode())
	}
	observability.RecordAPIUsage(s.Name(), "domain_search", true)

	best := domain.HRContact{}
	bestHR := false
	for _, e := range out.Emails {
		if e.Email == "" {
			continue
		}
		c := domain.HRContact{
			Name:   fullName(e.FirstName, e.LastName),
			Email:  e.Email,
			Title:  e.Position,
			Source: s.Name(),
		}
		// Snov reports a verification status, not a score.
		if e.Status == "verified" {
			c.Verified = true
			c.Confidence = 0.95
		} else {
			c.Confidence = 0.6
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
		return domain.HRContact{}, fmt.Errorf("op=snov.find company=%s: no addresses: %w", company, domain.ErrNotFound)
	}
	slog.Debug("snov contact found",
		slog.String("company", company),
		slog.Bool("hr_title", bestHR),
		slog.Bool("verified", best.Verified))
	return best, nil
}
