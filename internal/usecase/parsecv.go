package usecase

import (
	"context"
	"fmt"
	"log/slog"

	aipkg "github.com/fairyhunter13/ai-job-agent/internal/adapter/ai"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
	"github.com/fairyhunter13/ai-job-agent/pkg/textx"
)

// maxParseChars bounds the résumé text sent to the parse model; beyond
// this the tail is almost always references and boilerplate.
const maxParseChars = 15000

const parseCVSystemPrompt = `You are an expert résumé parser. Convert the résumé text into structured JSON.

Respond with JSON in exactly this shape:
{
  "full_name": "string",
  "email": "string",
  "phone": "string",
  "location": "string",
  "summary": "string",
  "skills": ["string"],
  "experience": [{"company": "string", "title": "string", "start_date": "YYYY-MM", "end_date": "YYYY-MM or empty when current", "bullets": ["string"]}],
  "education": [{"institution": "string", "degree": "string", "field": "string", "start_year": "YYYY", "end_year": "YYYY"}],
  "projects": [{"name": "string", "description": "string", "tech": ["string"], "url": "string"}],
  "certifications": ["string"],
  "languages": ["string"]
}

Rules:
1. Copy facts verbatim from the text; never invent entries or dates.
2. Omit fields the text does not contain (use empty strings or empty arrays).
3. Keep bullet points as written, one array element each.

CRITICAL: Respond with ONLY valid JSON. No explanations, no markdown, no code fences.`

// ParseCVWorker turns an uploaded file into structured CV content. It
// is the queue consumer's handler: a returned error hands the task to
// the retry manager, which re-enqueues or parks it by error class.
type ParseCVWorker struct {
	CVs       domain.CVRepository
	Extractor domain.TextExtractor
	LLM       domain.LLMClient
	Events    domain.EventSink

	cleaner *aipkg.ResponseCleaner
}

// NewParseCVWorker wires the worker.
func NewParseCVWorker(cvs domain.CVRepository, extractor domain.TextExtractor, llm domain.LLMClient, events domain.EventSink) *ParseCVWorker {
	return &ParseCVWorker{
		CVs:       cvs,
		Extractor: extractor,
		LLM:       llm,
		Events:    events,
		cleaner:   aipkg.NewResponseCleaner(),
	}
}

// Handle processes one parse task. It owns the queued → processing →
// ready transitions; failed is set by the retry manager when it parks.
func (w *ParseCVWorker) Handle(ctx context.Context, p domain.ParseCVPayload) error {
	if err := w.CVs.SetStatus(ctx, p.CVID, domain.CVProcessing, ""); err != nil {
		return fmt.Errorf("op=parsecv.handle: %w", err)
	}
	w.emit(p.UserID, domain.EventAgentProgress, domain.EventData{
		Agent: "cv_parser", Stage: "extract", Message: "Extracting text from " + p.Filename, Progress: 20,
	})

	text, err := w.Extractor.ExtractPath(ctx, p.Filename, p.Path)
	if err != nil {
		return fmt.Errorf("op=parsecv.extract cv_id=%s: %w", p.CVID, err)
	}
	text = textx.SanitizeText(text)
	if text == "" {
		// Nothing extractable; retrying the same file cannot help.
		return fmt.Errorf("op=parsecv.extract cv_id=%s: no text in file: %w", p.CVID, domain.ErrSchemaInvalid)
	}
	text = truncate(text, maxParseChars)

	w.emit(p.UserID, domain.EventAgentProgress, domain.EventData{
		Agent: "cv_parser", Stage: "structure", Message: "Structuring CV content", Progress: 60,
	})

	resp, err := w.LLM.Invoke(ctx, "cv_parse", []domain.ChatMessage{
		{Role: "system", Content: parseCVSystemPrompt},
		{Role: "user", Content: text},
	}, 0)
	if err != nil {
		return fmt.Errorf("op=parsecv.llm cv_id=%s: %w", p.CVID, err)
	}

	var content domain.CVContent
	if err := w.cleaner.Decode(resp, &content); err != nil {
		return fmt.Errorf("op=parsecv.decode cv_id=%s: %v: %w", p.CVID, err, domain.ErrSchemaInvalid)
	}
	if !parsedCVUsable(content) {
		return fmt.Errorf("op=parsecv.validate cv_id=%s: parse produced an empty CV: %w", p.CVID, domain.ErrSchemaInvalid)
	}

	if err := w.CVs.SetParsed(ctx, p.CVID, content); err != nil {
		return fmt.Errorf("op=parsecv.store cv_id=%s: %w", p.CVID, err)
	}
	w.emit(p.UserID, domain.EventAgentCompleted, domain.EventData{
		Agent: "cv_parser", Stage: "done",
		Message:  fmt.Sprintf("CV parsed: %d skills, %d positions", len(content.Skills), len(content.Experience)),
		Progress: 100,
	})
	slog.Info("cv parsed",
		slog.String("cv_id", p.CVID),
		slog.Int("skills", len(content.Skills)),
		slog.Int("experience", len(content.Experience)))
	return nil
}

// parsedCVUsable rejects structurally valid but empty parses.
func parsedCVUsable(c domain.CVContent) bool {
	return c.FullName != "" || len(c.Skills) > 0 || len(c.Experience) > 0
}

func (w *ParseCVWorker) emit(userID string, t domain.EventType, data domain.EventData) {
	if w.Events == nil {
		return
	}
	w.Events.Emit(userID, domain.Event{Type: t, Data: data})
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
