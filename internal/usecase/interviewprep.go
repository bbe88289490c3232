package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	aipkg "github.com/fairyhunter13/ai-job-agent/internal/adapter/ai"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// prepChunkSize bounds one embedded snippet; prepTopK is how many
// nearest snippets ground the prompt.
const (
	prepChunkSize = 600
	prepTopK      = 5
)

const interviewPrepSystemPrompt = `You are an expert interview coach. Generate likely interview questions for the given job and candidate, with suggested answers grounded in the candidate's actual experience.

Respond with JSON in exactly this shape:
{
  "questions": [
    {"question": "string", "suggested_answer": "string"}
  ]
}

Rules:
1. Produce 6 to 10 questions: a mix of role-specific, behavioural and company-fit.
2. Ground every suggested answer in the candidate's CV; never invent experience.
3. Keep each suggested answer under 120 words.

CRITICAL: Respond with ONLY valid JSON. No explanations, no markdown, no code fences.`

// InterviewPrepService generates interview questions for a (job, CV)
// pair. When an embedder and vector index are wired, job and CV chunks
// are upserted and the nearest snippets ground the prompt; without
// them prep degrades to a plain LLM call.
type InterviewPrepService struct {
	LLM      domain.LLMClient
	Postings domain.PostingRepository
	CVs      domain.CVRepository
	Embedder domain.Embedder
	Index    domain.VectorIndex
	Events   domain.EventSink

	cleaner *aipkg.ResponseCleaner
}

// NewInterviewPrepService wires the service. embedder and index may be
// nil when no vector stack is configured.
func NewInterviewPrepService(llm domain.LLMClient, postings domain.PostingRepository, cvs domain.CVRepository, embedder domain.Embedder, index domain.VectorIndex, events domain.EventSink) *InterviewPrepService {
	return &InterviewPrepService{
		LLM:      llm,
		Postings: postings,
		CVs:      cvs,
		Embedder: embedder,
		Index:    index,
		Events:   events,
		cleaner:  aipkg.NewResponseCleaner(),
	}
}

type prepQuestion struct {
	Question        string `json:"question"`
	SuggestedAnswer string `json:"suggested_answer"`
}

type prepResponse struct {
	Questions []prepQuestion `json:"questions"`
}

// Prepare generates interview prep for a job. cvID may be empty, in
// which case the newest ready CV is used; with several ready CVs the
// user is asked to pick one.
func (s *InterviewPrepService) Prepare(ctx domain.Context, userID, sessionID, jobID, cvID string) (TurnReply, error) {
	posting, err := s.Postings.Get(ctx, userID, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TurnReply{Text: "I can't find that job anymore. Run the search again and pick a fresh result."}, nil
		}
		return TurnReply{}, fmt.Errorf("op=prep.prepare: %w", err)
	}

	cv, reply, err := s.pickCV(ctx, userID, jobID, cvID)
	if err != nil {
		return TurnReply{}, err
	}
	if reply != nil {
		return *reply, nil
	}

	s.emit(userID, domain.EventAgentStarted, domain.EventData{
		Agent: "interview_prep", Stage: "start",
		Message: fmt.Sprintf("Preparing interview questions for %s at %s", posting.Title, posting.Company),
		JobID:   jobID, SessionID: sessionID,
	})

	snippets := s.retrieveContext(ctx, posting, cv)

	resp, err := s.LLM.Invoke(ctx, "interview_prep", []domain.ChatMessage{
		{Role: "system", Content: interviewPrepSystemPrompt},
		{Role: "user", Content: prepUserPrompt(posting, *cv.Parsed, snippets)},
	}, 0.4)
	if err != nil {
		s.emit(userID, domain.EventAgentError, domain.EventData{
			Agent: "interview_prep", Level: "error", Error: err.Error(), JobID: jobID, SessionID: sessionID,
		})
		return TurnReply{Text: llmGuidance(err)}, nil
	}

	var parsed prepResponse
	if err := s.cleaner.Decode(resp, &parsed); err != nil || len(parsed.Questions) == 0 {
		// Unparseable prep is still useful prose; hand it over as-is.
		slog.Warn("interview prep response unparseable, using raw text", slog.Any("error", err))
		return TurnReply{
			Text:     strings.TrimSpace(resp),
			Metadata: prepMeta(jobID, 0),
		}, nil
	}

	s.emit(userID, domain.EventAgentCompleted, domain.EventData{
		Agent: "interview_prep", Stage: "done",
		Message: fmt.Sprintf("%d interview questions ready", len(parsed.Questions)),
		JobID:   jobID, SessionID: sessionID, Progress: 100,
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Interview prep for %s at %s:\n\n", posting.Title, posting.Company)
	for i, q := range parsed.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q.Question)
		if q.SuggestedAnswer != "" {
			fmt.Fprintf(&b, "   Suggested answer: %s\n", q.SuggestedAnswer)
		}
		b.WriteByte('\n')
	}
	return TurnReply{
		Text:     strings.TrimRight(b.String(), "\n"),
		Metadata: prepMeta(jobID, len(parsed.Questions)),
	}, nil
}

// pickCV chooses the CV to prep with; a non-nil reply means the user
// has to act first.
func (s *InterviewPrepService) pickCV(ctx domain.Context, userID, jobID, cvID string) (domain.CV, *TurnReply, error) {
	if cvID != "" {
		cv, err := s.CVs.Get(ctx, userID, cvID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.CV{}, &TurnReply{Text: "That CV does not exist."}, nil
			}
			return domain.CV{}, nil, fmt.Errorf("op=prep.pick_cv: %w", err)
		}
		if cv.Status != domain.CVReady || cv.Parsed == nil {
			return domain.CV{}, &TurnReply{Text: "That CV isn't ready yet; it's still being parsed."}, nil
		}
		return cv, nil, nil
	}

	cvs, err := s.CVs.List(ctx, userID)
	if err != nil {
		return domain.CV{}, nil, fmt.Errorf("op=prep.pick_cv: %w", err)
	}
	var ready []domain.CV
	for _, c := range cvs {
		if c.Status == domain.CVReady && c.Parsed != nil {
			ready = append(ready, c)
		}
	}
	switch len(ready) {
	case 0:
		return domain.CV{}, &TurnReply{Text: "Upload a CV first so I can ground the answers in your experience."}, nil
	case 1:
		return ready[0], nil, nil
	default:
		ids := make([]string, len(ready))
		var b strings.Builder
		b.WriteString("Which CV should I prep with?\n")
		for i, c := range ready {
			ids[i] = c.ID
			fmt.Fprintf(&b, "%d. %s\n", i+1, c.Filename)
		}
		return domain.CV{}, &TurnReply{
			Text: b.String(),
			Metadata: &domain.MessageMetadata{
				Type: domain.MetaCVSelection,
				CVSelection: &domain.CVSelectionMeta{
					CVIDs:         ids,
					PendingIntent: string(domain.IntentInterviewPrep),
					Context:       encodeSelectionContext(jobID),
				},
			},
		}, nil
	}
}

// retrieveContext embeds job and CV chunks, upserts them, and returns
// the snippets nearest to the prep query. Any failure just means prep
// proceeds without retrieved context.
func (s *InterviewPrepService) retrieveContext(ctx domain.Context, posting domain.JobPosting, cv domain.CV) []string {
	if s.Embedder == nil || s.Index == nil {
		return nil
	}

	var chunks []domain.VectorPoint
	jobText := posting.Description
	if len(posting.Requirements) > 0 {
		jobText += "\n" + strings.Join(posting.Requirements, "\n")
	}
	for _, c := range chunkText(jobText, prepChunkSize) {
		chunks = append(chunks, domain.VectorPoint{
			ID:      uuid.New().String(),
			Payload: domain.VectorPayload{Kind: "job", RefID: posting.ID, Text: c},
		})
	}
	for _, c := range chunkText(cv.Parsed.FlatText(), prepChunkSize) {
		chunks = append(chunks, domain.VectorPoint{
			ID:      uuid.New().String(),
			Payload: domain.VectorPayload{Kind: "cv", RefID: cv.ID, Text: c},
		})
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Payload.Text
	}
	query := fmt.Sprintf("interview questions for %s at %s", posting.Title, posting.Company)
	vectors, err := s.Embedder.Embed(ctx, append([]string{query}, texts...))
	if err != nil || len(vectors) != len(texts)+1 {
		slog.Warn("prep embedding failed, continuing without context", slog.Any("error", err))
		return nil
	}
	queryVec := vectors[0]
	for i := range chunks {
		chunks[i].Vector = vectors[i+1]
	}

	if err := s.Index.Ensure(ctx, len(queryVec)); err != nil {
		slog.Warn("vector collection ensure failed", slog.Any("error", err))
		return nil
	}
	if err := s.Index.Upsert(ctx, chunks); err != nil {
		slog.Warn("vector upsert failed", slog.Any("error", err))
		return nil
	}
	hits, err := s.Index.Search(ctx, queryVec, prepTopK)
	if err != nil {
		slog.Warn("vector search failed", slog.Any("error", err))
		return nil
	}
	snippets := make([]string, 0, len(hits))
	for _, h := range hits {
		snippets = append(snippets, h.Payload.Text)
	}
	return snippets
}

func prepUserPrompt(posting domain.JobPosting, cv domain.CVContent, snippets []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job: %s at %s\n", posting.Title, posting.Company)
	if posting.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", truncate(posting.Description, 2000))
	}
	if len(posting.Requirements) > 0 {
		fmt.Fprintf(&b, "Requirements: %s\n", strings.Join(posting.Requirements, "; "))
	}
	fmt.Fprintf(&b, "\nCandidate: %s\n", cv.FullName)
	if cv.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", cv.Summary)
	}
	if len(cv.Skills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(cv.Skills, ", "))
	}
	for _, e := range cv.Experience {
		fmt.Fprintf(&b, "- %s, %s\n", e.Title, e.Company)
	}
	if len(snippets) > 0 {
		b.WriteString("\nRelevant context:\n")
		for _, sn := range snippets {
			fmt.Fprintf(&b, "- %s\n", truncate(sn, 400))
		}
	}
	return b.String()
}

func prepMeta(jobID string, questions int) *domain.MessageMetadata {
	return &domain.MessageMetadata{
		Type:           domain.MetaInterviewReady,
		InterviewReady: &domain.InterviewReadyMeta{JobID: jobID, Questions: questions},
	}
}

func (s *InterviewPrepService) emit(userID string, t domain.EventType, d domain.EventData) {
	if s.Events != nil {
		s.Events.Emit(userID, domain.Event{Type: t, Data: d})
	}
}

// chunkText splits text into chunks of at most size bytes, preferring
// paragraph then line boundaries.
func chunkText(text string, size int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var chunks []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= size {
			chunks = append(chunks, para)
			continue
		}
		var cur strings.Builder
		for _, line := range strings.Split(para, "\n") {
			if cur.Len() > 0 && cur.Len()+len(line)+1 > size {
				chunks = append(chunks, cur.String())
				cur.Reset()
			}
			for len(line) > size {
				chunks = append(chunks, line[:size])
				line = line[size:]
			}
			if cur.Len() > 0 {
				cur.WriteByte('\n')
			}
			cur.WriteString(line)
		}
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
		}
	}
	return chunks
}
