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

// JSearch queries the JSearch API on RapidAPI. JSearch takes one
// free-text query string, so title and location are joined.
type JSearch struct {
	apiKey  string
	host    string
	baseURL string
	rc      *resty.Client
}

// NewJSearch builds the adapter. A custom baseURL is used by tests.
func NewJSearch(cfg config.Config, baseURL string) *JSearch {
	host := "jsearch.p.rapidapi.com"
	if baseURL == "" {
		baseURL = "https://" + host
	}
	rc := resty.New().
		SetTimeout(cfg.SearchProviderTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && (r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500)
		})
	return &JSearch{apiKey: cfg.JSearchAPIKey, host: host, baseURL: baseURL, rc: rc}
}

// Name returns the provider id recorded in posting sources.
func (j *JSearch) Name() string { return "jsearch" }

type jsearchResponse struct {
	Data []struct {
		JobID          string  `json:"job_id"`
		JobTitle       string  `json:"job_title"`
		EmployerName   string  `json:"employer_name"`
		JobCity        string  `json:"job_city"`
		JobCountry     string  `json:"job_country"`
		JobDescription string  `json:"job_description"`
		JobApplyLink   string  `json:"job_apply_link"`
		JobPostedAt    string  `json:"job_posted_at_datetime_utc"`
		JobMinSalary   float64 `json:"job_min_salary"`
		JobMaxSalary   float64 `json:"job_max_salary"`
		JobEmployment  string  `json:"job_employment_type"`
		JobHighlights  struct {
			Qualifications []string `json:"Qualifications"`
		} `json:"job_highlights"`
	} `json:"data"`
}

// Search runs one JSearch query and normalises the results.
func (j *JSearch) Search(ctx domain.Context, q domain.JobQuery) ([]domain.JobPosting, error) {
	query := q.Title
	if q.Location != "" {
		query += " in " + q.Location
	}

	var out jsearchResponse
	start := time.Now()
	resp, err := j.rc.R().
		SetContext(ctx).
		SetHeader("X-RapidAPI-Key", j.apiKey).
		SetHeader("X-RapidAPI-Host", j.host).
		SetQueryParams(map[string]string{
			"query":     query,
			"page":      "1",
			"num_pages": "1",
		}).
		SetResult(&out).
		Get(j.baseURL + "/search")
	observability.ProviderRequestDuration.WithLabelValues(j.Name(), "search").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RecordAPIUsage(j.Name(), "search", false)
		return nil, fmt.Errorf("op=jsearch.search: %w", err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		observability.RecordAPIUsage(j.Name(), "search", false)
		return nil, fmt.Errorf("op=jsearch.search: %w", domain.ErrUpstreamRateLimit)
	}
	if resp.IsError() {
		observability.RecordAPIUsage(j.Name(), "search", false)
		return nil, fmt.Errorf("op=jsearch.search: status %d", resp.StatusCode())
	}
	observability.RecordAPIUsage(j.Name(), "search", true)

	limit := defaultLimit(q.Limit)
	postings := make([]domain.JobPosting, 0, limit)
	for _, d := range out.Data {
		if len(postings) >= limit {
			break
		}
		if d.JobTitle == "" || d.EmployerName == "" {
			continue
		}
		location := d.JobCity
		if d.JobCountry != "" {
			if location != "" {
				location += ", "
			}
			location += d.JobCountry
		}
		postings = append(postings, domain.JobPosting{
			ID:             d.JobID,
			Title:          d.JobTitle,
			Company:        d.EmployerName,
			Location:       location,
			Salary:         formatSalary("", d.JobMinSalary, d.JobMaxSalary),
			Type:           strings.ToLower(d.JobEmployment),
			Description:    d.JobDescription,
			Requirements:   d.JobHighlights.Qualifications,
			Sources:        []string{j.Name()},
			ApplicationURL: d.JobApplyLink,
			PostedDate:     parseTime(d.JobPostedAt),
		})
	}
	slog.Debug("jsearch search done",
		slog.String("query", query),
		slog.Int("results", len(postings)))
	return postings, nil
}
