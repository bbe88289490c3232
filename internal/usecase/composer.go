package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	aipkg "github.com/fairyhunter13/ai-job-agent/internal/adapter/ai"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// ComposeService writes the outreach email for one application. It is
// a single LLM call; a malformed response degrades to a minimal draft
// the user edits before approving.
type ComposeService struct {
	LLM     domain.LLMClient
	cleaner *aipkg.ResponseCleaner
}

// NewComposeService wires the composer over the router.
func NewComposeService(llm domain.LLMClient) *ComposeService {
	return &ComposeService{LLM: llm, cleaner: aipkg.NewResponseCleaner()}
}

const composeSystemPrompt = `You are an expert at writing concise, personal job application emails. Write a short outreach email from the candidate to the recruiter for the given job. At most 150 words, no placeholders, no markdown.

Respond with ONLY valid JSON in this exact shape:
{"subject": "...", "body": "..."}`

type composedMail struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Compose returns (subject, body). Empty fields from the model are
// filled with a minimally valid draft rather than failing the turn.
func (s *ComposeService) Compose(ctx domain.Context, job domain.JobPosting, cv domain.CVContent, contact domain.HRContact) (string, string, error) {
	user := fmt.Sprintf("Job: %s at %s\nRecruiter: %s\n\nCandidate name: %s\nCandidate summary: %s\nKey skills: %s",
		job.Title, job.Company, recruiterLine(contact),
		cv.FullName, cv.Summary, strings.Join(cv.Skills, ", "))

	resp, err := s.LLM.Invoke(ctx, "email_compose", []domain.ChatMessage{
		{Role: "system", Content: composeSystemPrompt},
		{Role: "user", Content: user},
	}, 0.5)
	if err != nil {
		return "", "", fmt.Errorf("op=compose.invoke: %w", err)
	}

	var mail composedMail
	if derr := s.cleaner.Decode(resp, &mail); derr != nil {
		slog.Warn("compose returned malformed JSON, using raw text as body", slog.Any("error", derr))
		mail.Body = strings.TrimSpace(resp)
	}
	subject, body := fallbackDraft(mail.Subject, mail.Body, job, cv)
	return subject, body, nil
}

func recruiterLine(c domain.HRContact) string {
	if c.Name != "" && c.Title != "" {
		return fmt.Sprintf("%s (%s)", c.Name, c.Title)
	}
	if c.Name != "" {
		return c.Name
	}
	return c.Email
}

// fallbackDraft fills blanks so an approved-then-edited draft is always
// sendable.
func fallbackDraft(subject, body string, job domain.JobPosting, cv domain.CVContent) (string, string) {
	subject = strings.TrimSpace(subject)
	body = strings.TrimSpace(body)
	if subject == "" {
		subject = fmt.Sprintf("Application for %s at %s", job.Title, job.Company)
	}
	if body == "" {
		name := cv.FullName
		if name == "" {
			name = "the candidate"
		}
		body = fmt.Sprintf("Hello,\n\nI would like to apply for the %s position at %s. My CV is attached.\n\nBest regards,\n%s",
			job.Title, job.Company, name)
	}
	return subject, body
}
