package usecase

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	aipkg "github.com/fairyhunter13/ai-job-agent/internal/adapter/ai"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

const keywordExtractPrompt = `You are an expert at reading job descriptions. Extract the concrete skills, tools and qualifications the job asks for.

Respond with JSON in exactly this shape:
{"keywords": ["string"]}

Rules:
1. Lowercase single words or short phrases, most important first.
2. At most 25 keywords; no duplicates, no generic filler words.

CRITICAL: Respond with ONLY valid JSON. No explanations, no markdown, no code fences.`

// AnalysisService scores the user's CV against a pasted job
// description. Scoring is deterministic; the LLM is only consulted
// when the description yields too few keywords to score against.
type AnalysisService struct {
	LLM   domain.LLMClient
	CVs   domain.CVRepository
	Clock func() time.Time

	cleaner *aipkg.ResponseCleaner
}

func NewAnalysisService(llm domain.LLMClient, cvs domain.CVRepository) *AnalysisService {
	return &AnalysisService{
		LLM:     llm,
		CVs:     cvs,
		Clock:   time.Now,
		cleaner: aipkg.NewResponseCleaner(),
	}
}

// Analyze scores the newest ready CV against the pasted description.
func (s *AnalysisService) Analyze(ctx domain.Context, userID, description string) (TurnReply, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return TurnReply{Text: "Paste the job description and I'll score your CV against it."}, nil
	}

	cvs, err := s.CVs.List(ctx, userID)
	if err != nil {
		return TurnReply{}, fmt.Errorf("op=analysis.analyze: %w", err)
	}
	var cv *domain.CVContent
	for _, c := range cvs {
		if c.Status == domain.CVReady && c.Parsed != nil {
			cv = c.Parsed
			break
		}
	}
	if cv == nil {
		return TurnReply{Text: "Upload a CV first, then paste the job description again."}, nil
	}

	job := domain.JobPosting{Description: description}
	if len(JobKeywords(job)) < 3 {
		// Too sparse to score from text alone; let the LLM pull
		// keywords out and feed them in as requirements.
		job.Requirements = s.extractKeywords(ctx, description)
	}

	b := MatchScore(*cv, job, s.Clock().UTC().Year())
	ats := ATSScore(*cv, job)

	var out strings.Builder
	fmt.Fprintf(&out, "Your CV scores %d/100 (%s) against this description. ATS readiness: %d/100.\n\n", b.Total, b.Rating, ats)
	fmt.Fprintf(&out, "Breakdown:\n")
	fmt.Fprintf(&out, "- skills: %.0f/35\n", b.Skills)
	fmt.Fprintf(&out, "- experience: %.0f/25\n", b.Experience)
	fmt.Fprintf(&out, "- education: %.0f/15\n", b.Education)
	fmt.Fprintf(&out, "- projects: %.0f/15\n", b.Projects)
	fmt.Fprintf(&out, "- keyword density: %.0f/10\n", b.Density)
	if len(b.Matched) > 0 {
		fmt.Fprintf(&out, "\nAlready covered: %s\n", strings.Join(firstN(b.Matched, 10), ", "))
	}
	if missing := TopMissing(b, 8); len(missing) > 0 {
		fmt.Fprintf(&out, "Worth adding if true: %s\n", strings.Join(missing, ", "))
	}
	return TurnReply{Text: strings.TrimRight(out.String(), "\n")}, nil
}

// extractKeywords is the LLM fallback for unscoreable descriptions. It
// returns nil on any failure; a zero-keyword score is still a score.
func (s *AnalysisService) extractKeywords(ctx domain.Context, description string) []string {
	resp, err := s.LLM.Invoke(ctx, "keyword_extract", []domain.ChatMessage{
		{Role: "system", Content: keywordExtractPrompt},
		{Role: "user", Content: truncate(description, 4000)},
	}, 0)
	if err != nil {
		slog.Warn("keyword extraction failed", slog.Any("error", err))
		return nil
	}
	var parsed struct {
		Keywords []string `json:"keywords"`
	}
	if err := s.cleaner.Decode(resp, &parsed); err != nil {
		slog.Warn("keyword extraction unparseable", slog.Any("error", err))
		return nil
	}
	return parsed.Keywords
}

func firstN(xs []string, n int) []string {
	if len(xs) <= n {
		return xs
	}
	return xs[:n]
}
