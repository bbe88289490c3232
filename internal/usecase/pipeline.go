package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// PipelineService drives one application through tailor, compose, CV
// approval, PDF render, email approval and send. Approvals are logical
// suspensions: the turn returns review metadata and the pipeline
// re-enters at the matching step on the next approved continuation.
// User-facing refusals (stale contact, quota exhaustion, invalid state)
// are replies, never errors; errors mean infrastructure failed.
type PipelineService struct {
	CVs          domain.CVRepository
	Tailored     domain.TailoredCVRepository
	Postings     domain.PostingRepository
	Apps         domain.ApplicationRepository
	Contacts     *ContactService
	Tailor       *TailorService
	Composer     *ComposeService
	Renderer     domain.PDFRenderer
	Mailer       domain.Mailer
	MailCreds    domain.MailCredentialRepository
	Events       domain.EventSink
	GeneratedDir string
	Clock        func() time.Time
}

// NewPipelineService wires the application pipeline.
func NewPipelineService(
	cvs domain.CVRepository,
	tailored domain.TailoredCVRepository,
	postings domain.PostingRepository,
	apps domain.ApplicationRepository,
	contacts *ContactService,
	tailor *TailorService,
	composer *ComposeService,
	renderer domain.PDFRenderer,
	mailer domain.Mailer,
	creds domain.MailCredentialRepository,
	events domain.EventSink,
	generatedDir string,
) *PipelineService {
	if generatedDir == "" {
		generatedDir = filepath.Join("data", "generated")
	}
	return &PipelineService{
		CVs:          cvs,
		Tailored:     tailored,
		Postings:     postings,
		Apps:         apps,
		Contacts:     contacts,
		Tailor:       tailor,
		Composer:     composer,
		Renderer:     renderer,
		Mailer:       mailer,
		MailCreds:    creds,
		Events:       events,
		GeneratedDir: generatedDir,
		Clock:        time.Now,
	}
}

// StartForJob begins (or resumes) the pipeline for one job, picking the
// CV automatically. One ready CV proceeds; several ask the user to pick.
func (s *PipelineService) StartForJob(ctx domain.Context, userID, sessionID, jobID string) (TurnReply, error) {
	return s.startForJob(ctx, userID, sessionID, jobID, "")
}

// StartForJobWithCV begins the pipeline with an explicit CV, as sent by
// the select-CV action.
func (s *PipelineService) StartForJobWithCV(ctx domain.Context, userID, sessionID, jobID, cvID string) (TurnReply, error) {
	return s.startForJob(ctx, userID, sessionID, jobID, cvID)
}

func (s *PipelineService) startForJob(ctx domain.Context, userID, sessionID, jobID, cvID string) (TurnReply, error) {
	posting, err := s.Postings.Get(ctx, userID, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		return TurnReply{Text: "I can't find that job any more. Run a new search and pick one of the results."}, nil
	}
	if err != nil {
		return TurnReply{}, fmt.Errorf("op=pipeline.start job=%s: %w", jobID, err)
	}

	// A pipeline already in flight for this job resumes where it stopped.
	if app, err := s.Apps.GetByJob(ctx, userID, jobID); err == nil {
		return s.resumeExisting(posting, app), nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return TurnReply{}, fmt.Errorf("op=pipeline.start job=%s: %w", jobID, err)
	}

	cv, reply, err := s.pickCV(ctx, userID, jobID, cvID)
	if err != nil || reply != nil {
		if reply != nil {
			return *reply, err
		}
		return TurnReply{}, err
	}
	return s.tailorStage(ctx, userID, sessionID, posting, cv, nil)
}

// resumeExisting re-emits the suspension the application is parked at.
func (s *PipelineService) resumeExisting(posting domain.JobPosting, app domain.Application) TurnReply {
	switch app.Status {
	case domain.ApplicationPendingApproval:
		return TurnReply{
			Text: fmt.Sprintf("The tailored CV for %s at %s is still waiting for your approval. Reply 'approve' to continue, or __REGENERATE_CV__:%s for another pass.",
				posting.Title, posting.Company, app.JobID),
			Metadata: cvReviewMeta(app),
		}
	case domain.ApplicationCVApproved:
		return TurnReply{
			Text:     fmt.Sprintf("The email to %s is ready to send. Reply 'send' to send it.", app.Contact.Email),
			Metadata: emailReviewMeta(app),
		}
	case domain.ApplicationSent:
		return TurnReply{Text: fmt.Sprintf("You already applied to %s at %s. I'm watching the thread for replies.", posting.Title, posting.Company)}
	case domain.ApplicationSendFailed:
		return TurnReply{
			Text:     fmt.Sprintf("The last send to %s failed (%s). Reply 'send' to retry.", app.Contact.Email, app.FailureMsg),
			Metadata: emailReviewMeta(app),
		}
	default:
		return TurnReply{Text: "That application is in an unexpected state. Run a new search to start over."}
	}
}

// pickCV selects the parsed CV the pipeline runs on. A nil reply means
// cv is usable; a non-nil reply is the user-facing ask.
func (s *PipelineService) pickCV(ctx domain.Context, userID, jobID, cvID string) (domain.CV, *TurnReply, error) {
	if cvID != "" {
		cv, err := s.CVs.Get(ctx, userID, cvID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.CV{}, &TurnReply{Text: "That CV does not exist. Upload one or pick another."}, nil
		}
		if err != nil {
			return domain.CV{}, nil, fmt.Errorf("op=pipeline.pick_cv: %w", err)
		}
		if cv.Status != domain.CVReady || cv.Parsed == nil {
			return domain.CV{}, &TurnReply{Text: "That CV is still being parsed. Give it a moment and try again."}, nil
		}
		return cv, nil, nil
	}

	cvs, err := s.CVs.List(ctx, userID)
	if err != nil {
		return domain.CV{}, nil, fmt.Errorf("op=pipeline.pick_cv: %w", err)
	}
	var ready []domain.CV
	for _, c := range cvs {
		if c.Status == domain.CVReady && c.Parsed != nil {
			ready = append(ready, c)
		}
	}
	switch len(ready) {
	case 0:
		return domain.CV{}, &TurnReply{Text: "Upload a CV first (POST /cv/upload); I need a parsed CV before I can tailor it."}, nil
	case 1:
		return ready[0], nil, nil
	default:
		ids := make([]string, len(ready))
		var b strings.Builder
		b.WriteString("Which CV should I tailor?\n")
		for i, c := range ready {
			ids[i] = c.ID
			fmt.Fprintf(&b, "%d. %s (uploaded %s)\n", i+1, c.Filename, c.CreatedAt.Format("2006-01-02"))
		}
		return domain.CV{}, &TurnReply{
			Text: b.String(),
			Metadata: &domain.MessageMetadata{
				Type: domain.MetaCVSelection,
				CVSelection: &domain.CVSelectionMeta{
					CVIDs:         ids,
					PendingIntent: string(domain.IntentCVTailor),
					Context:       encodeSelectionContext(jobID),
				},
			},
		}, nil
	}
}

// tailorStage runs tailor -> contact -> compose and suspends at the CV
// review. prior is non-nil when regenerating an existing application.
func (s *PipelineService) tailorStage(ctx domain.Context, userID, sessionID string, posting domain.JobPosting, cv domain.CV, prior *domain.Application) (TurnReply, error) {
	s.emit(userID, domain.EventAgentStarted, domain.EventData{
		Agent: "pipeline", Stage: "tailor", JobID: posting.ID, SessionID: sessionID,
		Message: fmt.Sprintf("Tailoring CV for %s at %s", posting.Title, posting.Company),
	})

	now := s.Clock().UTC()
	result, err := s.Tailor.Tailor(ctx, *cv.Parsed, posting, now.Year())
	if err != nil {
		s.emitError(userID, sessionID, posting.ID, err)
		return TurnReply{Text: fmt.Sprintf("I couldn't tailor the CV: %s.", llmGuidance(err))}, nil
	}

	tailored := domain.TailoredCV{
		ID:          uuid.New().String(),
		UserID:      userID,
		CVID:        cv.ID,
		JobID:       posting.ID,
		Content:     result.Tailored,
		CoverLetter: result.CoverLetter,
		ATSScore:    result.ATSScore,
		MatchScore:  result.MatchScore,
		ChangeLog:   result.ChangeLog,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.Tailored.Create(ctx, tailored); err != nil {
		return TurnReply{}, fmt.Errorf("op=pipeline.tailor job=%s: %w", posting.ID, err)
	}

	contact, reply := s.loadContact(ctx, userID, posting)
	if reply != nil {
		return *reply, nil
	}

	subject, body, err := s.Composer.Compose(ctx, posting, result.Tailored, contact)
	if err != nil {
		// The draft gets human review either way; a dead composer only
		// costs polish, not correctness.
		slog.Warn("email compose failed, using minimal draft", slog.Any("error", err))
		subject, body = fallbackDraft("", "", posting, result.Tailored)
	}

	app := prior
	if app == nil {
		app = &domain.Application{
			ID:        uuid.New().String(),
			UserID:    userID,
			SessionID: sessionID,
			JobID:     posting.ID,
			CVID:      cv.ID,
			Status:    domain.ApplicationDraft,
			CreatedAt: now,
		}
	}
	app.TailoredCVID = tailored.ID
	app.Contact = contact
	app.EmailSubject = subject
	app.EmailBody = body
	app.UpdatedAt = now

	if prior == nil {
		if err := app.Transition(domain.ApplicationPendingApproval); err != nil {
			return TurnReply{}, err
		}
		if _, err := s.Apps.Create(ctx, *app); err != nil {
			return TurnReply{}, fmt.Errorf("op=pipeline.create_app job=%s: %w", posting.ID, err)
		}
	} else {
		if err := s.Apps.Update(ctx, *app); err != nil {
			return TurnReply{}, fmt.Errorf("op=pipeline.update_app job=%s: %w", posting.ID, err)
		}
	}

	s.emit(userID, domain.EventApprovalRequested, domain.EventData{
		Agent: "pipeline", Stage: "cv_review", ApplicationID: app.ID, JobID: posting.ID,
		SessionID: sessionID, Message: "Tailored CV ready for review",
	})
	return TurnReply{
		Text:     cvReviewText(posting, result),
		Metadata: cvReviewMeta(*app),
	}, nil
}

// loadContact returns the accepted recruiter contact for the posting,
// re-resolving a stale pre-filter result. A nil contact comes back as a
// user-facing skip reply; the pipeline never sends to a guessed address.
func (s *PipelineService) loadContact(ctx domain.Context, userID string, posting domain.JobPosting) (domain.HRContact, *TurnReply) {
	if posting.Contact != nil && !posting.Contact.Stale() {
		return *posting.Contact, nil
	}
	contact, err := s.Contacts.Resolve(ctx, posting.Company, posting.Title, "")
	if err != nil {
		s.emit(userID, domain.EventAgentError, domain.EventData{
			Agent: "pipeline", Stage: "contact", JobID: posting.ID, Level: "warn",
			Message: fmt.Sprintf("No verified HR email for %s", posting.Company),
		})
		next, nextLine := s.nextJobSuggestion(ctx, userID, posting.ID)
		text := fmt.Sprintf("No verified HR email for %s, so I won't send anything for this job.", posting.Company)
		if next != "" {
			text += " " + nextLine
		}
		return domain.HRContact{}, &TurnReply{Text: text}
	}
	return contact, nil
}

// ApproveCV is the step downstream of the CV-review suspension: render
// the PDF and suspend again at the email review.
func (s *PipelineService) ApproveCV(ctx domain.Context, userID, sessionID, appID string) (TurnReply, error) {
	app, err := s.Apps.Get(ctx, userID, appID)
	if errors.Is(err, domain.ErrNotFound) {
		return TurnReply{Text: "I can't find that application. Run a search and start again."}, nil
	}
	if err != nil {
		return TurnReply{}, fmt.Errorf("op=pipeline.approve app=%s: %w", appID, err)
	}
	switch app.Status {
	case domain.ApplicationPendingApproval:
		// proceed
	case domain.ApplicationCVApproved, domain.ApplicationSendFailed:
		return TurnReply{
			Text:     fmt.Sprintf("The CV is already approved. Reply 'send' to send the email to %s.", app.Contact.Email),
			Metadata: emailReviewMeta(app),
		}, nil
	case domain.ApplicationSent:
		return TurnReply{Text: "That application was already sent."}, nil
	default:
		return TurnReply{Text: "That application isn't waiting for CV approval."}, nil
	}

	tailored, err := s.Tailored.Get(ctx, userID, app.TailoredCVID)
	if err != nil {
		return TurnReply{}, fmt.Errorf("op=pipeline.approve app=%s: %w", appID, err)
	}

	pdf, err := s.Renderer.RenderCV(ctx, tailored.Content)
	if err != nil {
		s.emitError(userID, sessionID, app.JobID, err)
		return TurnReply{
			Text:     "PDF rendering failed; nothing was sent. Reply 'approve' to try again.",
			Metadata: cvReviewMeta(app),
		}, nil
	}
	path := filepath.Join(s.GeneratedDir, fmt.Sprintf("cv_%s.pdf", app.ID))
	if err := os.MkdirAll(s.GeneratedDir, 0o755); err != nil {
		return TurnReply{}, fmt.Errorf("op=pipeline.approve app=%s: %w", appID, err)
	}
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return TurnReply{}, fmt.Errorf("op=pipeline.approve app=%s: %w", appID, err)
	}

	app.PDFPath = path
	if err := app.Transition(domain.ApplicationCVApproved); err != nil {
		return TurnReply{}, err
	}
	app.UpdatedAt = s.Clock().UTC()
	if err := s.Apps.Update(ctx, app); err != nil {
		return TurnReply{}, fmt.Errorf("op=pipeline.approve app=%s: %w", appID, err)
	}

	s.emit(userID, domain.EventApprovalRequested, domain.EventData{
		Agent: "pipeline", Stage: "email_review", ApplicationID: app.ID, JobID: app.JobID,
		SessionID: sessionID, Message: "Outreach email ready for review",
	})
	return TurnReply{
		Text: fmt.Sprintf("PDF generated. Here's the email to %s:\n\nSubject: %s\n\n%s\n\nReply 'send' to send it, or edit the application first.",
			app.Contact.Email, app.EmailSubject, app.EmailBody),
		Metadata: emailReviewMeta(app),
	}, nil
}

// SendEmail is the step downstream of the email-review suspension. A
// stale stored contact is re-resolved first; repeated not_found aborts
// with a user-facing reason.
func (s *PipelineService) SendEmail(ctx domain.Context, userID, sessionID, appID string) (TurnReply, error) {
	app, err := s.Apps.Get(ctx, userID, appID)
	if errors.Is(err, domain.ErrNotFound) {
		return TurnReply{Text: "I can't find that application. Run a search and start again."}, nil
	}
	if err != nil {
		return TurnReply{}, fmt.Errorf("op=pipeline.send app=%s: %w", appID, err)
	}
	switch app.Status {
	case domain.ApplicationCVApproved, domain.ApplicationSendFailed:
		// proceed (send_failed retries)
	case domain.ApplicationPendingApproval:
		return TurnReply{
			Text:     "Approve the tailored CV first, then I'll send the email.",
			Metadata: cvReviewMeta(app),
		}, nil
	case domain.ApplicationSent:
		return TurnReply{Text: "That application was already sent."}, nil
	default:
		return TurnReply{Text: "That application isn't ready to send."}, nil
	}

	if app.Contact.Stale() {
		var company, role string
		if posting, perr := s.Postings.Get(ctx, userID, app.JobID); perr == nil {
			company, role = posting.Company, posting.Title
		}
		resolved, rerr := s.Contacts.Resolve(ctx, company, role, "")
		if rerr != nil {
			if company == "" {
				company = "this employer"
			}
			s.emit(userID, domain.EventAgentError, domain.EventData{
				Agent: "pipeline", Stage: "contact", ApplicationID: app.ID, JobID: app.JobID,
				Level: "warn", Message: fmt.Sprintf("No verified HR email for %s", company),
			})
			return TurnReply{Text: fmt.Sprintf("No verified HR email for %s; I won't send to an unverified address.", company)}, nil
		}
		app.Contact = resolved
	}

	pdf, rerr := s.applicationPDF(ctx, userID, app)
	if rerr != nil {
		s.emitError(userID, sessionID, app.JobID, rerr)
		return TurnReply{
			Text:     "I couldn't produce the PDF attachment; nothing was sent. Reply 'send' to retry.",
			Metadata: emailReviewMeta(app),
		}, nil
	}

	now := s.Clock().UTC()
	threadID, serr := s.Mailer.Send(ctx, userID, domain.OutboundMail{
		To:         app.Contact.Email,
		Subject:    app.EmailSubject,
		Body:       app.EmailBody,
		Attachment: pdf,
		AttachName: "CV.pdf",
	})
	if serr != nil {
		return s.recordSendFailure(ctx, userID, sessionID, app, serr)
	}

	app.ThreadID = threadID
	app.SentAt = &now
	app.FailureKind = ""
	app.FailureMsg = ""
	if err := app.Transition(domain.ApplicationSent); err != nil {
		return TurnReply{}, err
	}
	app.UpdatedAt = now
	if err := s.Apps.Update(ctx, app); err != nil {
		// The mail is out; failing the turn now would invite a double
		// send on retry. Log and report success.
		slog.Error("application sent but state update failed",
			slog.String("application_id", app.ID), slog.Any("error", err))
	}

	s.emit(userID, domain.EventAgentCompleted, domain.EventData{
		Agent: "pipeline", Stage: "sent", ApplicationID: app.ID, JobID: app.JobID,
		SessionID: sessionID, Message: fmt.Sprintf("Application sent to %s", app.Contact.Email),
	})

	nextID, nextLine := s.nextJobSuggestion(ctx, userID, app.JobID)
	text := fmt.Sprintf("Sent to %s. I'm watching the thread and will flag any reply.", app.Contact.Email)
	if nextID != "" {
		text += " " + nextLine
	}
	return TurnReply{
		Text: text,
		Metadata: &domain.MessageMetadata{
			Type: domain.MetaApplicationSent,
			ApplicationSent: &domain.ApplicationSentMeta{
				ApplicationID: app.ID,
				JobID:         app.JobID,
				Recipient:     app.Contact.Email,
				NextJobID:     nextID,
			},
		},
	}, nil
}

// applicationPDF loads the rendered attachment, re-rendering when the
// stored file has gone missing.
func (s *PipelineService) applicationPDF(ctx domain.Context, userID string, app domain.Application) ([]byte, error) {
	if app.PDFPath != "" {
		if pdf, err := os.ReadFile(app.PDFPath); err == nil {
			return pdf, nil
		}
	}
	tailored, err := s.Tailored.Get(ctx, userID, app.TailoredCVID)
	if err != nil {
		return nil, fmt.Errorf("op=pipeline.pdf app=%s: %w", app.ID, err)
	}
	return s.Renderer.RenderCV(ctx, tailored.Content)
}

func (s *PipelineService) recordSendFailure(ctx domain.Context, userID, sessionID string, app domain.Application, serr error) (TurnReply, error) {
	kind := domain.SendFailureTransient
	guidance := fmt.Sprintf("Sending failed: %v. Reply 'send' to retry.", serr)
	var se *domain.SendError
	if errors.As(serr, &se) {
		kind = se.Kind
		switch se.Kind {
		case domain.SendFailureTokenRevoked:
			if err := s.MailCreds.Deactivate(ctx, userID); err != nil {
				slog.Warn("mail credential deactivate failed", slog.Any("error", err))
			}
			guidance = "Your mail authorization was revoked. Reconnect your mailbox, then reply 'send' to retry."
		case domain.SendFailurePermanentConfig:
			guidance = fmt.Sprintf("Sending is not configured: %s", se.Guidance)
		default:
			if se.Guidance != "" {
				guidance = fmt.Sprintf("Sending failed: %s Reply 'send' to retry.", se.Guidance)
			}
		}
	}

	app.FailureKind = kind
	app.FailureMsg = serr.Error()
	if err := app.Transition(domain.ApplicationSendFailed); err != nil {
		return TurnReply{}, err
	}
	app.UpdatedAt = s.Clock().UTC()
	if err := s.Apps.Update(ctx, app); err != nil {
		return TurnReply{}, fmt.Errorf("op=pipeline.send app=%s: %w", app.ID, err)
	}

	s.emit(userID, domain.EventAgentError, domain.EventData{
		Agent: "pipeline", Stage: "send", ApplicationID: app.ID, JobID: app.JobID,
		SessionID: sessionID, Level: "error", Error: serr.Error(),
		Message: "Email send failed",
	})
	return TurnReply{Text: guidance, Metadata: emailReviewMeta(app)}, nil
}

// Regenerate re-runs the tailor stage for an application still pending
// CV approval.
func (s *PipelineService) Regenerate(ctx domain.Context, userID, sessionID, jobID string) (TurnReply, error) {
	app, err := s.Apps.GetByJob(ctx, userID, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.StartForJob(ctx, userID, sessionID, jobID)
	}
	if err != nil {
		return TurnReply{}, fmt.Errorf("op=pipeline.regenerate job=%s: %w", jobID, err)
	}
	if app.Status != domain.ApplicationPendingApproval {
		return TurnReply{Text: "That application is past the CV review, so I can't regenerate it."}, nil
	}

	posting, err := s.Postings.Get(ctx, userID, jobID)
	if err != nil {
		return TurnReply{}, fmt.Errorf("op=pipeline.regenerate job=%s: %w", jobID, err)
	}
	cv, err := s.CVs.Get(ctx, userID, app.CVID)
	if err != nil || cv.Parsed == nil {
		return TurnReply{Text: "The CV behind this application is gone. Upload one and start again."}, nil
	}
	return s.tailorStage(ctx, userID, sessionID, posting, cv, &app)
}

// nextJobSuggestion picks the best-ranked stored posting the user has
// not applied to yet.
func (s *PipelineService) nextJobSuggestion(ctx domain.Context, userID, excludeJobID string) (string, string) {
	postings, err := s.Postings.List(ctx, userID, 10)
	if err != nil {
		return "", ""
	}
	for _, p := range postings {
		if p.ID == excludeJobID {
			continue
		}
		if _, err := s.Apps.GetByJob(ctx, userID, p.ID); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			continue
		}
		return p.ID, fmt.Sprintf("Next up: %s at %s — apply with __TAILOR_APPLY__:%s.", p.Title, p.Company, p.ID)
	}
	return "", ""
}

func cvReviewText(posting domain.JobPosting, result domain.TailorResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I tailored your CV for %s at %s (match %d, ATS %d).\n\nChanges:\n",
		posting.Title, posting.Company, result.MatchScore, result.ATSScore)
	for _, line := range result.ChangeLog {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	b.WriteString("\nReply 'approve' to generate the PDF and review the email.")
	return b.String()
}

func cvReviewMeta(app domain.Application) *domain.MessageMetadata {
	return &domain.MessageMetadata{
		Type: domain.MetaCVReview,
		CVReview: &domain.CVReviewMeta{
			ApplicationID: app.ID,
			JobID:         app.JobID,
			TailoredCVID:  app.TailoredCVID,
		},
	}
}

func emailReviewMeta(app domain.Application) *domain.MessageMetadata {
	return &domain.MessageMetadata{
		Type: domain.MetaEmailReview,
		EmailReview: &domain.EmailReviewMeta{
			ApplicationID: app.ID,
			Subject:       app.EmailSubject,
			Recipient:     app.Contact.Email,
		},
	}
}

func llmGuidance(err error) string {
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "every model in the pool is exhausted for today; try again later or pick a different model in settings"
	case errors.Is(err, domain.ErrProviderDisabled):
		return "no LLM provider is configured; add an API key and restart"
	default:
		return err.Error()
	}
}

func (s *PipelineService) emit(userID string, t domain.EventType, d domain.EventData) {
	if s.Events != nil {
		s.Events.Emit(userID, domain.Event{Type: t, Data: d})
	}
}

func (s *PipelineService) emitError(userID, sessionID, jobID string, err error) {
	s.emit(userID, domain.EventAgentError, domain.EventData{
		Agent: "pipeline", JobID: jobID, SessionID: sessionID,
		Level: "error", Error: err.Error(),
	})
}
