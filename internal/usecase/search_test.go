package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
	"github.com/fairyhunter13/ai-job-agent/internal/usecase"
)

func TestDedup_MergesAcrossBoards(t *testing.T) {
	t.Parallel()
	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	in := []domain.JobPosting{
		{
			ID: "adz-1", Company: "Acme Inc", Title: "Senior Backend Engineer",
			Description:  "Short blurb.",
			Requirements: []string{"Go", "Kubernetes"},
			Sources:      []string{"adzuna"},
			PostedDate:   &day1,
		},
		{
			ID: "js-9", Company: "Acme", Title: "Backend Engineer",
			Description:    "A much longer description of the backend engineer role at Acme.",
			Requirements:   []string{"Go", "PostgreSQL"},
			Sources:        []string{"jsearch"},
			ApplicationURL: "https://acme.example/jobs/9",
			Salary:         "EUR 90k",
			PostedDate:     &day2,
		},
		{
			ID: "rm-3", Company: "The Acme Company", Title: "Backend Engineer II",
			Description: "Tiny.",
			Sources:     []string{"remotive"},
		},
	}

	out := usecase.Dedup(in)
	require.Len(t, out, 1)
	got := out[0]
	assert.Equal(t, "adz-1", got.ID, "first posting keeps its identity")
	assert.Equal(t, "Acme Inc", got.Company)
	assert.Equal(t, in[1].Description, got.Description, "longer description wins")
	assert.Equal(t, "https://acme.example/jobs/9", got.ApplicationURL)
	assert.Equal(t, "EUR 90k", got.Salary)
	assert.ElementsMatch(t, []string{"Go", "Kubernetes", "PostgreSQL"}, got.Requirements)
	assert.Equal(t, []string{"adzuna", "jsearch", "remotive"}, got.Sources)
	require.NotNil(t, got.PostedDate)
	assert.True(t, got.PostedDate.Equal(day2), "later posted date wins")
}

func TestDedup_Idempotent(t *testing.T) {
	t.Parallel()
	in := []domain.JobPosting{
		testPosting("a", "Acme Inc", "Senior Backend Engineer"),
		testPosting("b", "Acme", "Backend Engineer"),
		testPosting("c", "Globex GmbH", "Platform Engineer"),
	}
	once := usecase.Dedup(in)
	twice := usecase.Dedup(once)
	assert.Equal(t, once, twice)
}

func TestDedup_DistinctPostingsSurvive(t *testing.T) {
	t.Parallel()
	out := usecase.Dedup([]domain.JobPosting{
		testPosting("a", "Acme", "Backend Engineer"),
		testPosting("b", "Acme", "Data Engineer"),
		testPosting("c", "Globex", "Backend Engineer"),
	})
	assert.Len(t, out, 3)
}

func TestDedup_AssignsMissingIDs(t *testing.T) {
	t.Parallel()
	out := usecase.Dedup([]domain.JobPosting{{Company: "Acme", Title: "Backend Engineer"}})
	require.Len(t, out, 1)
	_, err := uuid.Parse(out[0].ID)
	assert.NoError(t, err)
}

func acmeOnlyFinder() *scriptFinder {
	return &scriptFinder{name: "hunter", fn: func(company, _, _ string) (domain.HRContact, error) {
		if company == "Acme Inc" || company == "Acme" {
			return domain.HRContact{Email: "hr@acme.com", Confidence: 0.9, Source: "hunter", Verified: true}, nil
		}
		return domain.HRContact{}, fmt.Errorf("op=hunter.find: %w", domain.ErrNotFound)
	}}
}

func TestSearch_AggregatesScoresAndPersists(t *testing.T) {
	t.Parallel()
	llm := stub.New(map[string][]string{
		"job_query": {`{"title": "Backend Engineer", "location": "Berlin", "country_code": "de"}`},
	})
	adzuna := &scriptBoard{name: "adzuna", postings: []domain.JobPosting{
		testPosting("adz-1", "Acme Inc", "Senior Backend Engineer"),
		testPosting("adz-2", "Ghost Ltd", "Backend Engineer"),
	}}
	jsearch := &scriptBoard{name: "jsearch", postings: []domain.JobPosting{
		func() domain.JobPosting {
			p := testPosting("js-9", "Acme", "Backend Engineer")
			p.Sources = []string{"jsearch"}
			p.ApplicationURL = "https://acme.example/jobs/9"
			return p
		}(),
	}}
	broken := &scriptBoard{name: "remotive", err: errors.New("upstream timeout")}

	contacts := usecase.NewContactService([]domain.ContactFinder{acmeOnlyFinder()}, nil, time.Second)
	postings := &memPostings{}
	events := &eventRecorder{}
	svc := usecase.NewSearchService(llm, []domain.JobBoard{adzuna, jsearch, broken}, contacts, postings, events, time.Second, 2)
	svc.Clock = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }

	cv := testCV()
	got, err := svc.Search(context.Background(), "u1", "s1", "backend engineer in berlin", &cv, 5)
	require.NoError(t, err)
	require.Len(t, got, 1, "Ghost has no verified contact and the Acme pair merges")

	posting := got[0]
	assert.Equal(t, "Acme Inc", posting.Company)
	require.NotNil(t, posting.Contact)
	assert.Equal(t, "hr@acme.com", posting.Contact.Email)
	assert.ElementsMatch(t, []string{"adzuna", "jsearch"}, posting.Sources)
	assert.Positive(t, posting.MatchScore)
	_, uerr := uuid.Parse(posting.ID)
	assert.NoError(t, uerr, "persisted postings are re-keyed away from board ids")

	saved, err := postings.List(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, posting.ID, saved[0].ID)

	require.Len(t, adzuna.queries, 1)
	assert.Equal(t, "Backend Engineer", adzuna.queries[0].Title)
	assert.Equal(t, "de", adzuna.queries[0].CountryCode)
	assert.Equal(t, 15, adzuna.queries[0].Limit, "over-fetch is three times the requested limit")

	assert.True(t, events.has(domain.EventAgentStarted))
	assert.True(t, events.has(domain.EventAgentCompleted))
}

func TestSearch_LLMDownFallsBackToRawQuery(t *testing.T) {
	t.Parallel()
	llm := &stub.Client{Err: errors.New("all providers exhausted")}
	board := &scriptBoard{name: "adzuna"}
	svc := usecase.NewSearchService(llm, []domain.JobBoard{board}, nil, &memPostings{}, nil, time.Second, 1)

	_, err := svc.Search(context.Background(), "u1", "s1", "golang jobs in jakarta", nil, 0)
	require.NoError(t, err)
	require.Len(t, board.queries, 1)
	assert.Equal(t, "golang jobs in jakarta", board.queries[0].Title)
	assert.Equal(t, "id", board.queries[0].CountryCode, "country heuristics survive a dead parser")
}

func TestSearch_NoPostings(t *testing.T) {
	t.Parallel()
	llm := stub.New(map[string][]string{"job_query": {`{"title": "Backend Engineer"}`}})
	postings := &memPostings{}
	events := &eventRecorder{}
	svc := usecase.NewSearchService(llm, []domain.JobBoard{&scriptBoard{name: "adzuna"}}, nil, postings, events, time.Second, 1)

	got, err := svc.Search(context.Background(), "u1", "s1", "backend engineer", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.True(t, events.has(domain.EventAgentCompleted))
	saved, _ := postings.List(context.Background(), "u1", 0)
	assert.Empty(t, saved)
}
