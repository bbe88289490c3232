package jobboard

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

// Adzuna queries the Adzuna job search API. Adzuna scopes searches by
// country path segment; searches without a resolvable country default
// to the US index.
type Adzuna struct {
	appID   string
	appKey  string
	baseURL string
	rc      *resty.Client
}

// NewAdzuna builds the adapter. A custom baseURL is used by tests.
func NewAdzuna(cfg config.Config, baseURL string) *Adzuna {
	if baseURL == "" {
		baseURL = "https://api.adzuna.com/v1/api"
	}
	rc := resty.New().
		SetTimeout(cfg.SearchProviderTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && (r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500)
		})
	return &Adzuna{appID: cfg.AdzunaAppID, appKey: cfg.AdzunaAppKey, baseURL: baseURL, rc: rc}
}

// Name returns the provider id recorded in posting sources.
func (a *Adzuna) Name() string { return "adzuna" }

type adzunaResponse struct {
	Results []struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Company struct {
			DisplayName string `json:"display_name"`
		} `json:"company"`
		Location struct {
			DisplayName string `json:"display_name"`
		} `json:"location"`
		Description  string  `json:"description"`
		SalaryMin    float64 `json:"salary_min"`
		SalaryMax    float64 `json:"salary_max"`
		ContractTime string  `json:"contract_time"`
		RedirectURL  string  `json:"redirect_url"`
		Created      string  `json:"created"`
	} `json:"results"`
}

// Search runs one Adzuna query and normalises the results.
func (a *Adzuna) Search(ctx domain.Context, q domain.JobQuery) ([]domain.JobPosting, error) {
	country := strings.ToLower(q.CountryCode)
	if country == "" {
		country = "us"
	}

	var out adzunaResponse
	start := time.Now()
	resp, err := a.rc.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"app_id":           a.appID,
			"app_key":          a.appKey,
			"what":             q.Title,
			"where":            q.Location,
			"results_per_page": fmt.Sprintf("%d", defaultLimit(q.Limit)),
			"content-type":     "application/json",
		}).
		SetResult(&out).
		Get(fmt.Sprintf("%s/jobs/%s/search/1", a.baseURL, country))
	observability.ProviderRequestDuration.WithLabelValues(a.Name(), "search").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RecordAPIUsage(a.Name(), "search", false)
		return nil, fmt.Errorf("op=adzuna.search: %w", err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		observability.RecordAPIUsage(a.Name(), "search", false)
		return nil, fmt.Errorf("op=adzuna.search: %w", domain.ErrUpstreamRateLimit)
	}
	if resp.IsError() {
		observability.RecordAPIUsage(a.Name(), "search", false)
		return nil, fmt.Errorf("op=adzuna.search: status %d", resp.StatusCode())
	}
	observability.RecordAPIUsage(a.Name(), "search", true)

	postings := make([]domain.JobPosting, 0, len(out.Results))
	for _, r := range out.Results {
		if r.Title == "" || r.Company.DisplayName == "" {
			continue
		}
		postings = append(postings, domain.JobPosting{
			ID:             r.ID,
			Title:          r.Title,
			Company:        r.Company.DisplayName,
			Location:       r.Location.DisplayName,
			Salary:         formatSalary("", r.SalaryMin, r.SalaryMax),
			Type:           r.ContractTime,
			Description:    r.Description,
			Sources:        []string{a.Name()},
			ApplicationURL: r.RedirectURL,
			PostedDate:     parseTime(r.Created),
		})
	}
	slog.Debug("adzuna search done",
		slog.String("title", q.Title),
		slog.String("country", country),
		slog.Int("results", len(postings)))
	return postings, nil
}
