package jobboard

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/config"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// Remotive queries the public Remotive remote-jobs API. It needs no
// credential, so it is the one board enabled out of the box.
type Remotive struct {
	baseURL string
	rc      *resty.Client
}

// NewRemotive builds the adapter. A custom baseURL is used by tests.
func NewRemotive(cfg config.Config, baseURL string) *Remotive {
	if baseURL == "" {
		baseURL = "https://remotive.com/api"
	}
	rc := resty.New().
		SetTimeout(cfg.SearchProviderTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && (r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500)
		})
	return &Remotive{baseURL: baseURL, rc: rc}
}

// Name returns the provider id recorded in posting sources.
func (r *Remotive) Name() string { return "remotive" }

type remotiveResponse struct {
	Jobs []struct {
		ID              int64    `json:"id"`
		Title           string   `json:"title"`
		CompanyName     string   `json:"company_name"`
		Location        string   `json:"candidate_required_location"`
		URL             string   `json:"url"`
		PublicationDate string   `json:"publication_date"`
		Salary          string   `json:"salary"`
		JobType         string   `json:"job_type"`
		Description     string   `json:"description"`
		Tags            []string `json:"tags"`
	} `json:"jobs"`
}

// Search runs one Remotive query and normalises the results.
func (r *Remotive) Search(ctx domain.Context, q domain.JobQuery) ([]domain.JobPosting, error) {
	var out remotiveResponse
	start := time.Now()
	resp, err := r.rc.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"search": q.Title,
			"limit":  strconv.Itoa(defaultLimit(q.Limit)),
		}).
		SetResult(&out).
		Get(r.baseURL + "/remote-jobs")
	observability.ProviderRequestDuration.WithLabelValues(r.Name(), "search").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RecordAPIUsage(r.Name(), "search", false)
		return nil, fmt.Errorf("op=remotive.search: %w", err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		observability.RecordAPIUsage(r.Name(), "search", false)
		return nil, fmt.Errorf("op=remotive.search: %w", domain.ErrUpstreamRateLimit)
	}
	if resp.IsError() {
		observability.RecordAPIUsage(r.Name(), "search", false)
		return nil, fmt.Errorf("op=remotive.search: status %d", resp.StatusCode())
	}
	observability.RecordAPIUsage(r.Name(), "search", true)

	postings := make([]domain.JobPosting, 0, len(out.Jobs))
	for _, jb := range out.Jobs {
		if jb.Title == "" || jb.CompanyName == "" {
			continue
		}
		postings = append(postings, domain.JobPosting{
			ID:             strconv.FormatInt(jb.ID, 10),
			Title:          jb.Title,
			Company:        jb.CompanyName,
			Location:       jb.Location,
			Salary:         jb.Salary,
			Type:           jb.JobType,
			Description:    jb.Description,
			Requirements:   jb.Tags,
			Sources:        []string{r.Name()},
			ApplicationURL: jb.URL,
			PostedDate:     parseTime(jb.PublicationDate),
		})
	}
	slog.Debug("remotive search done",
		slog.String("title", q.Title),
		slog.Int("results", len(postings)))
	return postings, nil
}
