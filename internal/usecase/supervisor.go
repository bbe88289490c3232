package usecase

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// TurnReply is the outcome of one user turn: the assistant text plus
// optional structured metadata the client renders. Metadata doubles as
// the pipeline's suspension record.
type TurnReply struct {
	Text     string                  `json:"reply_text"`
	Metadata *domain.MessageMetadata `json:"metadata,omitempty"`
}

// historyWindow is how many prior messages ride along on classifier and
// general-chat calls.
const historyWindow = 8

// metadataWindow bounds the continuation scan over recent assistant
// metadata.
const metadataWindow = 10

// Supervisor classifies each user turn and dispatches it. Every
// external failure is converted into a user-facing reply inside the
// turn; a returned error means the session log itself is broken.
type Supervisor struct {
	LLM      domain.LLMClient
	Sessions domain.SessionRepository
	Pipeline *PipelineService
	Search   *SearchService
	Prep     *InterviewPrepService
	Analysis *AnalysisService
	CVs      domain.CVRepository
	Postings domain.PostingRepository
	Apps     domain.ApplicationRepository
	Events   domain.EventSink
}

// HandleTurn runs one user turn end to end: append the user message,
// route it, append the assistant reply with its metadata.
func (s *Supervisor) HandleTurn(ctx domain.Context, userID, sessionID, text string) (TurnReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnReply{}, fmt.Errorf("op=supervisor.turn: empty message: %w", domain.ErrInvalidArgument)
	}
	if _, err := s.Sessions.Append(ctx, domain.Message{
		UserID:    userID,
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Text:      text,
	}); err != nil {
		return TurnReply{}, fmt.Errorf("op=supervisor.turn: %w", err)
	}

	reply, err := s.route(ctx, userID, sessionID, text)
	if err != nil {
		return TurnReply{}, err
	}

	if _, err := s.Sessions.Append(ctx, domain.Message{
		UserID:    userID,
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Text:      reply.Text,
		Metadata:  reply.Metadata,
	}); err != nil {
		return TurnReply{}, fmt.Errorf("op=supervisor.turn: %w", err)
	}
	return reply, nil
}

func (s *Supervisor) route(ctx domain.Context, userID, sessionID, text string) (TurnReply, error) {
	if msg, isAction, err := domain.ParseAction(text); isAction {
		if err != nil {
			// Unknown prefix or malformed arguments: reject with the
			// specific reason, no state change.
			return TurnReply{Text: fmt.Sprintf("I don't recognise that action: %v.", err)}, nil
		}
		return s.dispatchAction(ctx, userID, sessionID, msg)
	}

	intent := s.classify(ctx, userID, sessionID, text)
	slog.Debug("turn classified",
		slog.String("session_id", sessionID),
		slog.String("intent", string(intent)))
	return s.dispatchIntent(ctx, userID, sessionID, intent, text)
}

func (s *Supervisor) dispatchAction(ctx domain.Context, userID, sessionID string, msg domain.ActionMessage) (TurnReply, error) {
	switch msg.Action {
	case domain.ActionTailorApply:
		return s.Pipeline.StartForJob(ctx, userID, sessionID, msg.Args[0])
	case domain.ActionApproveCV:
		return s.Pipeline.ApproveCV(ctx, userID, sessionID, msg.Args[0])
	case domain.ActionSendEmail:
		return s.Pipeline.SendEmail(ctx, userID, sessionID, msg.Args[0])
	case domain.ActionRegenerateCV:
		return s.Pipeline.Regenerate(ctx, userID, sessionID, msg.Args[0])
	case domain.ActionPrepInterview:
		return s.Prep.Prepare(ctx, userID, sessionID, msg.Args[0], "")
	case domain.ActionEditCV:
		return s.editCV(ctx, userID, msg.Args[0], msg.Args[1])
	case domain.ActionSelectCV:
		return s.selectCV(ctx, userID, sessionID, msg.Args[0], msg.Args[1], msg.Args[2])
	default:
		return TurnReply{Text: "I don't recognise that action."}, nil
	}
}

// editCV applies user edits to a parsed CV.
func (s *Supervisor) editCV(ctx domain.Context, userID, cvID, body string) (TurnReply, error) {
	if _, err := s.CVs.Get(ctx, userID, cvID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TurnReply{Text: "That CV does not exist."}, nil
		}
		return TurnReply{}, fmt.Errorf("op=supervisor.edit_cv: %w", err)
	}
	var content domain.CVContent
	if err := json.Unmarshal([]byte(body), &content); err != nil {
		return TurnReply{Text: fmt.Sprintf("I couldn't parse those CV edits: %v.", err)}, nil
	}
	if err := s.CVs.SetParsed(ctx, cvID, content); err != nil {
		return TurnReply{}, fmt.Errorf("op=supervisor.edit_cv: %w", err)
	}
	return TurnReply{Text: "CV updated."}, nil
}

// selectCV resumes the intent that was parked on a CV choice.
func (s *Supervisor) selectCV(ctx domain.Context, userID, sessionID, cvID, pendingIntent, encoded string) (TurnReply, error) {
	switch domain.Intent(pendingIntent) {
	case domain.IntentCVTailor:
		jobID, err := decodeSelectionContext(encoded)
		if err != nil {
			return TurnReply{Text: "That selection has expired. Run the search again."}, nil
		}
		return s.Pipeline.StartForJobWithCV(ctx, userID, sessionID, jobID, cvID)
	case domain.IntentInterviewPrep:
		jobID, err := decodeSelectionContext(encoded)
		if err != nil {
			return TurnReply{Text: "That selection has expired. Run the search again."}, nil
		}
		return s.Prep.Prepare(ctx, userID, sessionID, jobID, cvID)
	default:
		return TurnReply{Text: fmt.Sprintf("I can't resume %q from a CV selection.", pendingIntent)}, nil
	}
}

// affirmatives are the closed token set that marks a short reply as a
// continuation, and an approval when found in the first six tokens.
var affirmatives = map[string]bool{
	"yes": true, "y": true, "ok": true, "okay": true, "sure": true,
	"send": true, "approve": true, "approved": true, "continue": true,
	"next": true, "go": true, "proceed": true, "confirm": true,
	"yep": true, "yeah": true, "do": true,
}

var searchVerbs = []string{"find", "search", "look for", "looking for", "hunt for"}
var searchNouns = []string{"job", "role", "position", "opening", "vacanc", "compan"}
var tailorVerbs = []string{"tailor", "customize", "customise", "adapt", "rewrite", "tune"}
var cvNouns = []string{"cv", "resume", "résumé"}

// classify applies the rule ladder, then the LLM, then the general
// fallback. The classifier never fails a turn.
func (s *Supervisor) classify(ctx domain.Context, userID, sessionID, text string) domain.Intent {
	lower := strings.ToLower(text)
	tokens := strings.Fields(lower)

	if len(tokens) > 0 && len(tokens) <= 3 && affirmatives[strings.Trim(tokens[0], ".,!?")] {
		return domain.IntentContinuation
	}
	if containsAny(lower, searchVerbs) && containsAny(lower, searchNouns) {
		return domain.IntentJobSearch
	}
	if containsAny(lower, tailorVerbs) && containsAny(lower, cvNouns) {
		return domain.IntentCVTailor
	}

	history, err := s.Sessions.History(ctx, userID, sessionID, historyWindow*2)
	if err != nil {
		slog.Warn("history read failed, classifying without it", slog.Any("error", err))
	}
	msgs := classifierMessages(history, text)
	resp, err := s.LLM.Invoke(ctx, "intent", msgs, 0)
	if err != nil {
		slog.Warn("intent classification failed, assuming general", slog.Any("error", err))
		return domain.IntentGeneral
	}
	intent, _ := domain.ParseIntent(resp)
	return intent
}

const intentSystemPrompt = `You classify the user's latest message in a job application assistant. Respond with exactly one word from this set:
job_search, cv_upload, cv_tailor, interview_prep, cv_analysis, status, continuation, general

No punctuation, no explanation.`

// classifierMessages assembles up to historyWindow non-action prior
// messages plus the new text.
func classifierMessages(history []domain.Message, text string) []domain.ChatMessage {
	msgs := []domain.ChatMessage{{Role: "system", Content: intentSystemPrompt}}
	var prior []domain.ChatMessage
	for i := len(history) - 1; i >= 0 && len(prior) < historyWindow; i-- {
		m := history[i]
		if strings.HasPrefix(strings.TrimSpace(m.Text), "__") {
			continue
		}
		prior = append(prior, domain.ChatMessage{Role: string(m.Role), Content: m.Text})
	}
	for i := len(prior) - 1; i >= 0; i-- {
		msgs = append(msgs, prior[i])
	}
	return append(msgs, domain.ChatMessage{Role: "user", Content: text})
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (s *Supervisor) dispatchIntent(ctx domain.Context, userID, sessionID string, intent domain.Intent, text string) (TurnReply, error) {
	switch intent {
	case domain.IntentJobSearch:
		return s.runSearch(ctx, userID, sessionID, text)
	case domain.IntentCVUpload:
		return TurnReply{Text: "Upload your CV as a PDF or DOCX via POST /cv/upload (at most 10 MiB). I'll parse it in the background and tell you when it's ready."}, nil
	case domain.IntentCVTailor:
		return s.askWhichJob(ctx, userID, sessionID)
	case domain.IntentInterviewPrep:
		return s.prepFromContext(ctx, userID, sessionID)
	case domain.IntentCVAnalysis:
		return s.Analysis.Analyze(ctx, userID, text)
	case domain.IntentStatus:
		return s.statusSummary(ctx, userID)
	case domain.IntentContinuation:
		return s.continueFrom(ctx, userID, sessionID, text)
	default:
		return s.generalChat(ctx, userID, sessionID, text)
	}
}

func (s *Supervisor) runSearch(ctx domain.Context, userID, sessionID, text string) (TurnReply, error) {
	cv := s.latestParsedCV(ctx, userID)
	postings, err := s.Search.Search(ctx, userID, sessionID, text, cv, 0)
	if err != nil {
		slog.Error("search failed", slog.Any("error", err))
		return TurnReply{Text: "The job search failed on my side. Try again in a moment."}, nil
	}
	if len(postings) == 0 {
		return TurnReply{Text: "I found no postings with a verified recruiter contact for that search. Try different wording or a broader location."}, nil
	}

	ids := make([]string, len(postings))
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d jobs with verified recruiter contacts:\n", len(postings))
	for i, p := range postings {
		ids[i] = p.ID
		fmt.Fprintf(&b, "%d. %s at %s", i+1, p.Title, p.Company)
		if p.Location != "" {
			fmt.Fprintf(&b, " (%s)", p.Location)
		}
		if p.MatchScore > 0 {
			fmt.Fprintf(&b, " — match %d", p.MatchScore)
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nApply with __TAILOR_APPLY__:{job_id}, or tell me which one you like.")
	return TurnReply{
		Text: b.String(),
		Metadata: &domain.MessageMetadata{
			Type:       domain.MetaJobResults,
			JobResults: &domain.JobResultsMeta{Query: text, JobIDs: ids},
		},
	}, nil
}

// askWhichJob answers a tailor request by pointing at the jobs from the
// most recent search, or starting the pipeline directly when only one
// job is on the table.
func (s *Supervisor) askWhichJob(ctx domain.Context, userID, sessionID string) (TurnReply, error) {
	meta := s.lastMetadata(ctx, userID, sessionID)
	if meta == nil || meta.Type != domain.MetaJobResults || len(meta.JobResults.JobIDs) == 0 {
		return TurnReply{Text: "Search for jobs first, then pick the one to tailor your CV for."}, nil
	}
	if len(meta.JobResults.JobIDs) == 1 {
		return s.Pipeline.StartForJob(ctx, userID, sessionID, meta.JobResults.JobIDs[0])
	}
	var b strings.Builder
	b.WriteString("Which job should I tailor your CV for?\n")
	for i, id := range meta.JobResults.JobIDs {
		p, err := s.Postings.Get(ctx, userID, id)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "%d. %s at %s — __TAILOR_APPLY__:%s\n", i+1, p.Title, p.Company, p.ID)
	}
	return TurnReply{Text: b.String()}, nil
}

func (s *Supervisor) prepFromContext(ctx domain.Context, userID, sessionID string) (TurnReply, error) {
	msgs, err := s.Sessions.RecentAssistantMetadata(ctx, userID, sessionID, metadataWindow)
	if err != nil {
		return TurnReply{}, fmt.Errorf("op=supervisor.prep: %w", err)
	}
	for _, m := range msgs {
		switch m.Metadata.Type {
		case domain.MetaApplicationSent:
			return s.Prep.Prepare(ctx, userID, sessionID, m.Metadata.ApplicationSent.JobID, "")
		case domain.MetaJobResults:
			if n := len(m.Metadata.JobResults.JobIDs); n == 1 {
				return s.Prep.Prepare(ctx, userID, sessionID, m.Metadata.JobResults.JobIDs[0], "")
			}
			return TurnReply{Text: "Which job is the interview for? Use __PREP_INTERVIEW__:{job_id} on one of the search results."}, nil
		}
	}
	return TurnReply{Text: "Tell me which job the interview is for — search for it first, then use __PREP_INTERVIEW__:{job_id}."}, nil
}

func (s *Supervisor) statusSummary(ctx domain.Context, userID string) (TurnReply, error) {
	apps, err := s.Apps.List(ctx, userID)
	if err != nil {
		return TurnReply{}, fmt.Errorf("op=supervisor.status: %w", err)
	}
	cvs, err := s.CVs.List(ctx, userID)
	if err != nil {
		return TurnReply{}, fmt.Errorf("op=supervisor.status: %w", err)
	}
	if len(apps) == 0 && len(cvs) == 0 {
		return TurnReply{Text: "Nothing in flight yet. Upload a CV and ask me to find jobs."}, nil
	}

	counts := map[domain.ApplicationStatus]int{}
	interviews := 0
	for _, a := range apps {
		counts[a.Status]++
		if a.InterviewOffer {
			interviews++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d CV(s) uploaded and %d application(s):\n", len(cvs), len(apps))
	for _, st := range []domain.ApplicationStatus{
		domain.ApplicationPendingApproval, domain.ApplicationCVApproved,
		domain.ApplicationSent, domain.ApplicationSendFailed,
	} {
		if counts[st] > 0 {
			fmt.Fprintf(&b, "- %d %s\n", counts[st], strings.ReplaceAll(string(st), "_", " "))
		}
	}
	if interviews > 0 {
		fmt.Fprintf(&b, "- %d with an interview offer\n", interviews)
	}
	return TurnReply{Text: b.String()}, nil
}

// continueFrom resumes from the most recent assistant metadata. The
// approval table: cv_review approves the CV, email_review sends, both
// only on an explicit approval token; job_results always asks which
// job; application_sent offers the next one.
func (s *Supervisor) continueFrom(ctx domain.Context, userID, sessionID, text string) (TurnReply, error) {
	meta := s.lastMetadata(ctx, userID, sessionID)
	if meta == nil {
		return s.generalChat(ctx, userID, sessionID, text)
	}
	approved := ExplicitApproval(text)

	switch meta.Type {
	case domain.MetaJobResults:
		return s.askWhichJob(ctx, userID, sessionID)
	case domain.MetaCVReview:
		if approved {
			return s.Pipeline.ApproveCV(ctx, userID, sessionID, meta.CVReview.ApplicationID)
		}
		return TurnReply{Text: fmt.Sprintf("Reply 'approve' when you're happy with the tailored CV, or __REGENERATE_CV__:%s for another pass.", meta.CVReview.JobID), Metadata: meta}, nil
	case domain.MetaEmailReview:
		if approved {
			return s.Pipeline.SendEmail(ctx, userID, sessionID, meta.EmailReview.ApplicationID)
		}
		return TurnReply{Text: fmt.Sprintf("Reply 'send' to send the email to %s.", meta.EmailReview.Recipient), Metadata: meta}, nil
	case domain.MetaApplicationSent:
		if meta.ApplicationSent.NextJobID != "" {
			return s.Pipeline.StartForJob(ctx, userID, sessionID, meta.ApplicationSent.NextJobID)
		}
		return TurnReply{Text: "That application is out. Want me to search for more jobs?"}, nil
	case domain.MetaCVSelection:
		return TurnReply{Text: "Pick one of the CVs above first.", Metadata: meta}, nil
	default:
		return s.generalChat(ctx, userID, sessionID, text)
	}
}

// ExplicitApproval reports whether any of the first six tokens is an
// approval word. The set is closed; anything else prompts again rather
// than acting.
func ExplicitApproval(text string) bool {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) > 6 {
		tokens = tokens[:6]
	}
	for _, t := range tokens {
		if affirmatives[strings.Trim(t, ".,!?")] {
			return true
		}
	}
	return false
}

func (s *Supervisor) generalChat(ctx domain.Context, userID, sessionID, text string) (TurnReply, error) {
	history, err := s.Sessions.History(ctx, userID, sessionID, historyWindow*2)
	if err != nil {
		slog.Warn("history read failed for general chat", slog.Any("error", err))
	}
	msgs := []domain.ChatMessage{{Role: "system", Content: generalSystemPrompt}}
	msgs = append(msgs, classifierMessages(history, text)[1:]...)
	resp, err := s.LLM.Invoke(ctx, "general", msgs, 0.7)
	if err != nil {
		slog.Warn("general chat failed", slog.Any("error", err))
		return TurnReply{Text: "I can search job boards, tailor your CV per job, draft outreach emails and watch for replies. Upload a CV to get started."}, nil
	}
	return TurnReply{Text: strings.TrimSpace(resp)}, nil
}

const generalSystemPrompt = `You are a job application assistant. You can search job boards, tailor CVs per job, draft outreach emails, send them after approval, watch for replies and prepare users for interviews. Answer briefly and point the user at the next concrete step.`

// lastMetadata returns the most recent assistant metadata in the
// continuation window, or nil.
func (s *Supervisor) lastMetadata(ctx domain.Context, userID, sessionID string) *domain.MessageMetadata {
	msgs, err := s.Sessions.RecentAssistantMetadata(ctx, userID, sessionID, metadataWindow)
	if err != nil {
		slog.Warn("metadata scan failed", slog.Any("error", err))
		return nil
	}
	if len(msgs) == 0 {
		return nil
	}
	return msgs[0].Metadata
}

// latestParsedCV returns the newest ready CV's content, or nil.
func (s *Supervisor) latestParsedCV(ctx domain.Context, userID string) *domain.CVContent {
	cvs, err := s.CVs.List(ctx, userID)
	if err != nil {
		slog.Warn("cv list failed", slog.Any("error", err))
		return nil
	}
	for _, c := range cvs {
		if c.Status == domain.CVReady && c.Parsed != nil {
			return c.Parsed
		}
	}
	return nil
}

// encodeSelectionContext stashes the pending jobID in the opaque
// base64 context the select-CV action echoes back.
func encodeSelectionContext(jobID string) string {
	return base64.StdEncoding.EncodeToString([]byte(jobID))
}

func decodeSelectionContext(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) == 0 {
		return "", fmt.Errorf("selection context: %w", domain.ErrInvalidArgument)
	}
	return string(raw), nil
}
