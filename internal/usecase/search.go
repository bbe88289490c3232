package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	aipkg "github.com/fairyhunter13/ai-job-agent/internal/adapter/ai"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// defaultSearchLimit caps a search result when the caller asks for
// nothing specific.
const defaultSearchLimit = 10

// SearchService is the job search aggregator: parse the query, fan out
// to every configured board, deduplicate, drop postings without a
// verified recruiter contact, score against the CV, rank.
type SearchService struct {
	LLM       domain.LLMClient
	Boards    []domain.JobBoard
	Contacts  *ContactService
	Postings  domain.PostingRepository
	Events    domain.EventSink
	Timeout   time.Duration // per board
	Prefilter int           // contact lookup worker pool size
	Clock     func() time.Time

	cleaner *aipkg.ResponseCleaner
}

// NewSearchService wires the aggregator.
func NewSearchService(llm domain.LLMClient, boards []domain.JobBoard, contacts *ContactService, postings domain.PostingRepository, events domain.EventSink, timeout time.Duration, prefilter int) *SearchService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if prefilter <= 0 {
		prefilter = 8
	}
	return &SearchService{
		LLM:       llm,
		Boards:    boards,
		Contacts:  contacts,
		Postings:  postings,
		Events:    events,
		Timeout:   timeout,
		Prefilter: prefilter,
		Clock:     time.Now,
		cleaner:   aipkg.NewResponseCleaner(),
	}
}

// Search runs one aggregation for a free-text query. cv may be nil; it
// only affects scoring. Results are persisted before they are returned
// so follow-up actions can reference postings by id.
func (s *SearchService) Search(ctx domain.Context, userID, sessionID, query string, cv *domain.CVContent, limit int) ([]domain.JobPosting, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	s.emit(userID, domain.EventAgentStarted, domain.EventData{
		Agent: "job_search", Message: "Starting job search", SessionID: sessionID,
	})

	q := s.parseQuery(ctx, query)
	q.Limit = limit * 3 // over-fetch; dedup and the contact filter shrink the set
	s.emit(userID, domain.EventAgentProgress, domain.EventData{
		Agent: "job_search", Stage: "query", Progress: 10, SessionID: sessionID,
		Message: fmt.Sprintf("Searching for %q", q.Title),
	})

	found := s.fanOut(ctx, q)
	if len(found) == 0 {
		s.emit(userID, domain.EventAgentCompleted, domain.EventData{
			Agent: "job_search", Message: "No postings found", SessionID: sessionID,
		})
		return nil, nil
	}

	deduped := Dedup(found)
	s.emit(userID, domain.EventAgentProgress, domain.EventData{
		Agent: "job_search", Stage: "dedup", Progress: 50, SessionID: sessionID,
		Message: fmt.Sprintf("%d postings after deduplication", len(deduped)),
	})

	withContact := s.prefilterContacts(ctx, deduped)
	s.emit(userID, domain.EventAgentProgress, domain.EventData{
		Agent: "job_search", Stage: "contacts", Progress: 80, SessionID: sessionID,
		Message: fmt.Sprintf("%d postings with verified recruiter contacts", len(withContact)),
	})

	if cv != nil {
		year := s.Clock().UTC().Year()
		for i := range withContact {
			withContact[i].MatchScore = MatchScore(*cv, withContact[i], year).Total
		}
	}
	rankPostings(withContact)
	if len(withContact) > limit {
		withContact = withContact[:limit]
	}
	// Postings belong to the search that produced them: re-key away from
	// provider-native ids so rows never collide across users or runs.
	for i := range withContact {
		withContact[i].ID = uuid.New().String()
	}

	// The fan-out and contact filter can take minutes; SaveAll acquires
	// fresh pool connections, never one held across those awaits.
	if len(withContact) > 0 && s.Postings != nil {
		if err := s.Postings.SaveAll(ctx, userID, withContact); err != nil {
			return nil, fmt.Errorf("op=search.save: %w", err)
		}
	}
	s.emit(userID, domain.EventAgentCompleted, domain.EventData{
		Agent: "job_search", Progress: 100, SessionID: sessionID,
		Message: fmt.Sprintf("Found %d matching jobs", len(withContact)),
	})
	return withContact, nil
}

// parseQuery turns free text into a structured query with one LLM call.
// On any failure the raw text becomes the title; country heuristics
// still apply, so a dead LLM degrades rather than blocks the search.
func (s *SearchService) parseQuery(ctx domain.Context, text string) domain.JobQuery {
	q := domain.JobQuery{Title: strings.TrimSpace(text)}
	resp, err := s.LLM.Invoke(ctx, "job_query", []domain.ChatMessage{
		{Role: "system", Content: queryParsePrompt},
		{Role: "user", Content: text},
	}, 0)
	if err != nil {
		slog.Warn("query parse failed, using raw text", slog.Any("error", err))
	} else {
		var parsed domain.JobQuery
		if derr := s.cleaner.Decode(resp, &parsed); derr != nil {
			slog.Warn("query parse returned malformed JSON", slog.Any("error", derr))
		} else if strings.TrimSpace(parsed.Title) != "" {
			q.Title = strings.TrimSpace(parsed.Title)
			q.Location = strings.TrimSpace(parsed.Location)
			q.CountryCode = strings.ToLower(strings.TrimSpace(parsed.CountryCode))
		}
	}
	if q.CountryCode == "" {
		q.CountryCode = countryFromText(text + " " + q.Location)
	}
	return q
}

const queryParsePrompt = `You are a job search query parser. Extract the job title, location and ISO 3166-1 alpha-2 country code from the user's request.

Respond with ONLY valid JSON in this exact shape:
{"title": "...", "location": "...", "country_code": "..."}

Leave location and country_code empty when the user did not state them. No explanations.`

// countrySubstrings maps lower-cased location hints onto country codes.
// Checked in declared order; the first hit wins.
var countrySubstrings = []struct {
	hint string
	code string
}{
	{"united states", "us"}, {"usa", "us"}, {"new york", "us"}, {"san francisco", "us"},
	{"united kingdom", "gb"}, {"london", "gb"},
	{"germany", "de"}, {"berlin", "de"}, {"munich", "de"},
	{"netherlands", "nl"}, {"amsterdam", "nl"},
	{"indonesia", "id"}, {"jakarta", "id"},
	{"singapore", "sg"},
	{"india", "in"}, {"bangalore", "in"}, {"bengaluru", "in"},
	{"australia", "au"}, {"sydney", "au"},
	{"canada", "ca"}, {"toronto", "ca"}, {"vancouver", "ca"},
	{"france", "fr"}, {"paris", "fr"},
	{"japan", "jp"}, {"tokyo", "jp"},
}

func countryFromText(text string) string {
	text = strings.ToLower(text)
	for _, c := range countrySubstrings {
		if strings.Contains(text, c.hint) {
			return c.code
		}
	}
	return ""
}

// fanOut queries every board concurrently with a per-board timeout.
// A failing board is logged and skipped; order of the surviving
// results follows the declared board order, so aggregation stays
// deterministic for identical board responses.
func (s *SearchService) fanOut(ctx domain.Context, q domain.JobQuery) []domain.JobPosting {
	results := make([][]domain.JobPosting, len(s.Boards))
	g, gctx := errgroup.WithContext(ctx)
	for i, board := range s.Boards {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, s.Timeout)
			defer cancel()
			postings, err := board.Search(callCtx, q)
			if err != nil {
				slog.Warn("job board failed, skipping",
					slog.String("board", board.Name()),
					slog.Any("error", err))
				return nil
			}
			results[i] = postings
			return nil
		})
	}
	_ = g.Wait() // board errors never propagate

	var all []domain.JobPosting
	for _, r := range results {
		all = append(all, r...)
	}
	if len(all) == 0 && len(s.Boards) == 0 {
		slog.Info("no job boards configured")
	}
	return all
}

// prefilterContacts resolves recruiter contacts with a bounded worker
// pool and drops postings without an accepted contact. Relative order
// of survivors is preserved.
func (s *SearchService) prefilterContacts(ctx domain.Context, postings []domain.JobPosting) []domain.JobPosting {
	if s.Contacts == nil {
		return postings
	}
	type slot struct {
		contact domain.HRContact
		ok      bool
	}
	slots := make([]slot, len(postings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Prefilter)
	for i := range postings {
		g.Go(func() error {
			contact, err := s.Contacts.Resolve(gctx, postings[i].Company, postings[i].Title, "")
			if err != nil {
				slog.Debug("posting dropped, no verified contact",
					slog.String("company", postings[i].Company),
					slog.String("title", postings[i].Title))
				return nil
			}
			slots[i] = slot{contact: contact, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	kept := postings[:0]
	for i, p := range postings {
		if !slots[i].ok {
			continue
		}
		c := slots[i].contact
		p.Contact = &c
		kept = append(kept, p)
	}
	return kept
}

// rankPostings sorts by descending match score; ties go to the later
// posted date, then input order.
func rankPostings(postings []domain.JobPosting) {
	sort.SliceStable(postings, func(i, j int) bool {
		if postings[i].MatchScore != postings[j].MatchScore {
			return postings[i].MatchScore > postings[j].MatchScore
		}
		di, dj := postings[i].PostedDate, postings[j].PostedDate
		switch {
		case di != nil && dj != nil && !di.Equal(*dj):
			return di.After(*dj)
		case di != nil && dj == nil:
			return true
		default:
			return false
		}
	})
}

// Dedup merges postings sharing a normalised (company, title) key.
// Merge rules: longer description wins, first non-empty application
// URL and salary stick, requirement lists union, sources append.
// Dedup is idempotent and assigns each surviving posting a fresh id.
func Dedup(postings []domain.JobPosting) []domain.JobPosting {
	index := make(map[string]int, len(postings))
	var out []domain.JobPosting
	for _, p := range postings {
		key := dedupKey(p.Company, p.Title)
		at, ok := index[key]
		if !ok {
			if p.ID == "" {
				p.ID = uuid.New().String()
			}
			index[key] = len(out)
			out = append(out, p)
			continue
		}
		out[at] = mergePostings(out[at], p)
	}
	return out
}

func mergePostings(a, b domain.JobPosting) domain.JobPosting {
	if len(b.Description) > len(a.Description) {
		a.Description = b.Description
	}
	if a.ApplicationURL == "" {
		a.ApplicationURL = b.ApplicationURL
	}
	if a.Salary == "" {
		a.Salary = b.Salary
	}
	if a.Type == "" {
		a.Type = b.Type
	}
	if b.PostedDate != nil && (a.PostedDate == nil || b.PostedDate.After(*a.PostedDate)) {
		a.PostedDate = b.PostedDate
	}
	a.Requirements = unionStrings(a.Requirements, b.Requirements)
	a.Sources = unionStrings(a.Sources, b.Sources)
	return a
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := append([]string(nil), a...)
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// corporate suffixes stripped from the end of a company name, after
// punctuation removal.
var corpSuffixes = map[string]bool{
	"inc": true, "llc": true, "ltd": true, "gmbh": true, "corp": true,
	"corporation": true, "co": true, "company": true, "plc": true,
	"bv": true, "pte": true, "group": true, "holdings": true,
}

// seniority tokens stripped from anywhere in a title.
var seniorityTokens = map[string]bool{
	"senior": true, "sr": true, "junior": true, "jr": true, "lead": true,
	"principal": true, "staff": true, "i": true, "ii": true, "iii": true,
	"iv": true, "v": true,
}

func dedupKey(company, title string) string {
	return normalizeCompany(company) + "|" + normalizeTitle(title)
}

func normalizeCompany(s string) string {
	tokens := splitWords(s)
	tokens = trimLeadingThe(tokens)
	for len(tokens) > 1 && corpSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

func normalizeTitle(s string) string {
	var kept []string
	for _, t := range splitWords(s) {
		if seniorityTokens[t] {
			continue
		}
		kept = append(kept, t)
	}
	return strings.Join(kept, " ")
}

func trimLeadingThe(tokens []string) []string {
	if len(tokens) > 1 && tokens[0] == "the" {
		return tokens[1:]
	}
	return tokens
}

func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

func (s *SearchService) emit(userID string, t domain.EventType, d domain.EventData) {
	if s.Events != nil {
		s.Events.Emit(userID, domain.Event{Type: t, Data: d})
	}
}
