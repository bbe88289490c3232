package usecase_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
	"github.com/fairyhunter13/ai-job-agent/internal/usecase"
)

const tailorResp = `{"cv_sections":[{"section":"summary","tag":"modified","original":"Backend engineer focused on Go services and Kubernetes.","text":"Backend engineer targeting Acme."}],"non_cv_sections":[],"skills_to_remove":[],"cover_letter":"Dear team"}`

const composeResp = `{"subject":"Backend Engineer application","body":"Hello Dana,\n\nI build Go services and would love to talk."}`

type pipelineFixture struct {
	svc      *usecase.PipelineService
	llm      *stub.Client
	cvs      *memCVs
	tailored *memTailored
	postings *memPostings
	apps     *memApps
	mailer   *scriptMailer
	creds    *memCreds
	events   *eventRecorder
	renderer *memRenderer
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	llm := stub.New(map[string][]string{
		"cv_tailor":     {tailorResp},
		"email_compose": {composeResp},
	})
	f := &pipelineFixture{
		llm:      llm,
		cvs:      &memCVs{},
		tailored: &memTailored{},
		postings: &memPostings{},
		apps:     &memApps{},
		mailer:   &scriptMailer{},
		creds:    &memCreds{},
		events:   &eventRecorder{},
		renderer: &memRenderer{},
	}
	f.svc = &usecase.PipelineService{
		CVs:          f.cvs,
		Tailored:     f.tailored,
		Postings:     f.postings,
		Apps:         f.apps,
		Contacts:     usecase.NewContactService([]domain.ContactFinder{okFinder("hunter", "hr@acme.com")}, nil, time.Second),
		Tailor:       usecase.NewTailorService(llm),
		Composer:     usecase.NewComposeService(llm),
		Renderer:     f.renderer,
		Mailer:       f.mailer,
		MailCreds:    f.creds,
		Events:       f.events,
		GeneratedDir: t.TempDir(),
		Clock:        func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) },
	}
	return f
}

func freshContact() *domain.HRContact {
	return &domain.HRContact{Name: "Dana", Email: "hr@acme.com", Confidence: 0.9, Source: "hunter", Verified: true}
}

func (f *pipelineFixture) seedJob(t *testing.T, contact *domain.HRContact) domain.JobPosting {
	t.Helper()
	p := testPosting("job-1", "Acme", "Backend Engineer")
	p.Contact = contact
	require.NoError(t, f.postings.SaveAll(context.Background(), "u1", []domain.JobPosting{p}))
	return p
}

func (f *pipelineFixture) seedCV(t *testing.T) {
	t.Helper()
	_, err := f.cvs.Create(context.Background(), readyCV("cv-1", "u1"))
	require.NoError(t, err)
}

// seedApprovedApp parks an application at cv_approved, the state the
// send step re-enters at.
func (f *pipelineFixture) seedApprovedApp(t *testing.T, contact domain.HRContact) domain.Application {
	t.Helper()
	ctx := context.Background()
	f.seedJob(t, nil)
	_, err := f.tailored.Create(ctx, domain.TailoredCV{ID: "t-1", UserID: "u1", JobID: "job-1", Content: testCV()})
	require.NoError(t, err)
	app := domain.Application{
		ID: "app-1", UserID: "u1", SessionID: "s1", JobID: "job-1", CVID: "cv-1",
		TailoredCVID: "t-1", Contact: contact,
		EmailSubject: "Backend Engineer application", EmailBody: "Hello",
		Status: domain.ApplicationCVApproved,
	}
	_, err = f.apps.Create(ctx, app)
	require.NoError(t, err)
	return app
}

func TestPipeline_TailorApproveSend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.seedCV(t)
	f.seedJob(t, freshContact())

	reply, err := f.svc.StartForJob(ctx, "u1", "s1", "job-1")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "I tailored your CV for Backend Engineer at Acme")
	assert.Contains(t, reply.Text, "Reply 'approve'")
	require.NotNil(t, reply.Metadata)
	require.Equal(t, domain.MetaCVReview, reply.Metadata.Type)
	appID := reply.Metadata.CVReview.ApplicationID
	require.NotEmpty(t, appID)
	assert.Equal(t, domain.ApplicationPendingApproval, f.apps.get(appID).Status)

	reply, err = f.svc.ApproveCV(ctx, "u1", "s1", appID)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "PDF generated")
	assert.Contains(t, reply.Text, "hr@acme.com")
	require.NotNil(t, reply.Metadata)
	assert.Equal(t, domain.MetaEmailReview, reply.Metadata.Type)
	app := f.apps.get(appID)
	assert.Equal(t, domain.ApplicationCVApproved, app.Status)
	_, statErr := os.Stat(app.PDFPath)
	assert.NoError(t, statErr, "the rendered PDF is on disk")

	reply, err = f.svc.SendEmail(ctx, "u1", "s1", appID)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Sent to hr@acme.com")
	require.NotNil(t, reply.Metadata)
	require.Equal(t, domain.MetaApplicationSent, reply.Metadata.Type)
	assert.Equal(t, "hr@acme.com", reply.Metadata.ApplicationSent.Recipient)

	app = f.apps.get(appID)
	assert.Equal(t, domain.ApplicationSent, app.Status)
	assert.Equal(t, "thread-1", app.ThreadID)
	require.NotNil(t, app.SentAt)

	require.Equal(t, 1, f.mailer.sentCount())
	mail := f.mailer.sent[0]
	assert.Equal(t, "hr@acme.com", mail.To)
	assert.Equal(t, app.EmailSubject, mail.Subject)
	assert.Equal(t, "CV.pdf", mail.AttachName)
	assert.NotEmpty(t, mail.Attachment)

	assert.True(t, f.events.has(domain.EventAgentStarted))
	assert.True(t, f.events.has(domain.EventApprovalRequested))
	assert.True(t, f.events.has(domain.EventAgentCompleted))
}

func TestPipeline_StaleContactNeverReceivesMail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPipelineFixture(t)
	stale := domain.HRContact{Email: "hr@acme.com", Confidence: 0.2, Source: domain.ContactSourceGuess}
	f.seedApprovedApp(t, stale)
	f.svc.Contacts = usecase.NewContactService([]domain.ContactFinder{notFoundFinder("hunter")}, nil, time.Second)

	reply, err := f.svc.SendEmail(ctx, "u1", "s1", "app-1")
	require.NoError(t, err, "a skipped job is a reply, not an error")
	assert.Contains(t, reply.Text, "No verified HR email for Acme")
	assert.Contains(t, reply.Text, "won't send")
	assert.Equal(t, 0, f.mailer.sentCount())
	assert.Equal(t, domain.ApplicationCVApproved, f.apps.get("app-1").Status, "refusal leaves the application untouched")
	assert.True(t, f.events.has(domain.EventAgentError))
}

func TestPipeline_StaleContactReResolvedBeforeSend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPipelineFixture(t)
	stale := domain.HRContact{Email: "old@acme.com", Confidence: 0.3, Source: domain.ContactSourceLLM}
	f.seedApprovedApp(t, stale)

	reply, err := f.svc.SendEmail(ctx, "u1", "s1", "app-1")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Sent to hr@acme.com")
	require.Equal(t, 1, f.mailer.sentCount())
	assert.Equal(t, "hr@acme.com", f.mailer.sent[0].To, "send goes to the re-resolved address")
	assert.Equal(t, "hr@acme.com", f.apps.get("app-1").Contact.Email)
}

func TestPipeline_ResumeSkipsSecondTailor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.seedCV(t)
	f.seedJob(t, freshContact())

	_, err := f.svc.StartForJob(ctx, "u1", "s1", "job-1")
	require.NoError(t, err)
	require.Equal(t, 1, f.llm.CallCount("cv_tailor"))

	reply, err := f.svc.StartForJob(ctx, "u1", "s1", "job-1")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "still waiting for your approval")
	require.NotNil(t, reply.Metadata)
	assert.Equal(t, domain.MetaCVReview, reply.Metadata.Type)
	assert.Equal(t, 1, f.llm.CallCount("cv_tailor"), "resume re-emits the suspension without tailoring again")
}

func TestPipeline_SendFailureParksForRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.seedApprovedApp(t, *freshContact())
	f.mailer.sendErr = &domain.SendError{Kind: domain.SendFailureTransient, Guidance: "Gmail hiccuped."}

	reply, err := f.svc.SendEmail(ctx, "u1", "s1", "app-1")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Gmail hiccuped.")
	assert.Contains(t, reply.Text, "Reply 'send' to retry")
	app := f.apps.get("app-1")
	assert.Equal(t, domain.ApplicationSendFailed, app.Status)
	assert.Equal(t, domain.SendFailureTransient, app.FailureKind)
	require.NotNil(t, reply.Metadata)
	assert.Equal(t, domain.MetaEmailReview, reply.Metadata.Type)

	f.mailer.sendErr = nil
	reply, err = f.svc.SendEmail(ctx, "u1", "s1", "app-1")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Sent to hr@acme.com")
	assert.Equal(t, domain.ApplicationSent, f.apps.get("app-1").Status)
}

func TestPipeline_TokenRevokedDeactivatesCredential(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.seedApprovedApp(t, *freshContact())
	f.mailer.sendErr = &domain.SendError{Kind: domain.SendFailureTokenRevoked, Err: errors.New("invalid_grant")}

	reply, err := f.svc.SendEmail(ctx, "u1", "s1", "app-1")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "mail authorization was revoked")
	assert.Equal(t, 1, f.creds.deactivated)
	app := f.apps.get("app-1")
	assert.Equal(t, domain.ApplicationSendFailed, app.Status)
	assert.Equal(t, domain.SendFailureTokenRevoked, app.FailureKind)
}

func TestPipeline_SentButUpdateFailedStillReportsSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.seedApprovedApp(t, *freshContact())
	f.apps.updateErr = errors.New("pg down")

	reply, err := f.svc.SendEmail(ctx, "u1", "s1", "app-1")
	require.NoError(t, err, "the mail is out; failing now would invite a double send")
	assert.Contains(t, reply.Text, "Sent to hr@acme.com")
	assert.Equal(t, 1, f.mailer.sentCount())
}

func TestPipeline_NoReadyCV(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.seedJob(t, freshContact())

	reply, err := f.svc.StartForJob(ctx, "u1", "s1", "job-1")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Upload a CV first")
	assert.Empty(t, f.apps.rows)
}

func TestPipeline_MultipleCVsAskForSelection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.seedJob(t, freshContact())
	_, err := f.cvs.Create(ctx, readyCV("cv-1", "u1"))
	require.NoError(t, err)
	_, err = f.cvs.Create(ctx, readyCV("cv-2", "u1"))
	require.NoError(t, err)

	reply, err := f.svc.StartForJob(ctx, "u1", "s1", "job-1")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Which CV should I tailor?")
	require.NotNil(t, reply.Metadata)
	require.Equal(t, domain.MetaCVSelection, reply.Metadata.Type)
	sel := reply.Metadata.CVSelection
	assert.Len(t, sel.CVIDs, 2)
	assert.Equal(t, string(domain.IntentCVTailor), sel.PendingIntent)
	assert.NotEmpty(t, sel.Context)
	assert.Equal(t, 0, f.llm.CallCount("cv_tailor"))
}

func TestPipeline_UnknownJob(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t)
	reply, err := f.svc.StartForJob(context.Background(), "u1", "s1", "nope")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "can't find that job")
}

func TestPipeline_ContactMissSkipsJobWithoutApplication(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.seedCV(t)
	f.seedJob(t, nil)
	f.svc.Contacts = usecase.NewContactService([]domain.ContactFinder{notFoundFinder("hunter")}, nil, time.Second)

	reply, err := f.svc.StartForJob(ctx, "u1", "s1", "job-1")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "No verified HR email for Acme")
	assert.Empty(t, f.apps.rows, "no application is created for a job the agent cannot mail")
	assert.Equal(t, 0, f.mailer.sentCount())
}

func TestPipeline_RenderFailureKeepsApprovalPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.seedCV(t)
	f.seedJob(t, freshContact())
	reply, err := f.svc.StartForJob(ctx, "u1", "s1", "job-1")
	require.NoError(t, err)
	appID := reply.Metadata.CVReview.ApplicationID

	f.renderer.err = errors.New("gotenberg unreachable")
	reply, err = f.svc.ApproveCV(ctx, "u1", "s1", appID)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "PDF rendering failed")
	assert.Equal(t, domain.ApplicationPendingApproval, f.apps.get(appID).Status)
	require.NotNil(t, reply.Metadata)
	assert.Equal(t, domain.MetaCVReview, reply.Metadata.Type)
}

func TestPipeline_RegenerateReplacesDraft(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.seedCV(t)
	f.seedJob(t, freshContact())

	reply, err := f.svc.StartForJob(ctx, "u1", "s1", "job-1")
	require.NoError(t, err)
	appID := reply.Metadata.CVReview.ApplicationID

	reply, err = f.svc.Regenerate(ctx, "u1", "s1", "job-1")
	require.NoError(t, err)
	require.NotNil(t, reply.Metadata)
	assert.Equal(t, domain.MetaCVReview, reply.Metadata.Type)
	assert.Equal(t, appID, reply.Metadata.CVReview.ApplicationID, "regeneration reuses the application")
	assert.Equal(t, 2, f.llm.CallCount("cv_tailor"))
	assert.Len(t, f.apps.rows, 1)

	_, err = f.svc.ApproveCV(ctx, "u1", "s1", appID)
	require.NoError(t, err)
	reply, err = f.svc.Regenerate(ctx, "u1", "s1", "job-1")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "past the CV review")
}

func TestPipeline_SendBeforeApproval(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.seedCV(t)
	f.seedJob(t, freshContact())
	reply, err := f.svc.StartForJob(ctx, "u1", "s1", "job-1")
	require.NoError(t, err)
	appID := reply.Metadata.CVReview.ApplicationID

	reply, err = f.svc.SendEmail(ctx, "u1", "s1", appID)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Approve the tailored CV first")
	assert.Equal(t, 0, f.mailer.sentCount())
}
