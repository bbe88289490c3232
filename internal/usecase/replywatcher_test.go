package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
	"github.com/fairyhunter13/ai-job-agent/internal/usecase"
)

func TestInterviewSignal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		snippet string
		want    bool
	}{
		{"We'd like to schedule an interview next week", true},
		{"Are you AVAILABLE on Tuesday?", true},
		{"Here is a Zoom invite for our chat", true},
		{"Let's talk about NEXT STEPS", true},
		{"Thanks, we received your CV and will be in touch soon", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, usecase.InterviewSignal(tt.snippet), "snippet=%q", tt.snippet)
	}
}

func TestReplyWatcher_StartStopIdempotent(t *testing.T) {
	t.Parallel()
	w := usecase.NewReplyWatcher(&memApps{}, &scriptMailer{}, nil, time.Hour)
	assert.False(t, w.Running())

	w.Start()
	assert.True(t, w.Running())
	w.Start() // second Start is a no-op
	assert.True(t, w.Running())

	w.Stop()
	assert.False(t, w.Running())
	w.Stop() // second Stop is a no-op

	// The watcher restarts cleanly after a stop.
	w.Start()
	assert.True(t, w.Running())
	w.Stop()
	assert.False(t, w.Running())
}

func TestReplyWatcher_SweepRecordsReplyAndInterviewSignal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sentAt := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	reply1 := sentAt.Add(2 * time.Hour)
	reply2 := sentAt.Add(4 * time.Hour)

	apps := &memApps{}
	_, err := apps.Create(ctx, domain.Application{
		ID: "app-1", UserID: "u1", SessionID: "s1", JobID: "job-1",
		Status: domain.ApplicationSent, ThreadID: "thread-1", SentAt: &sentAt,
		Contact: domain.HRContact{Email: "dana@acme.com"},
	})
	require.NoError(t, err)
	_, err = apps.Create(ctx, domain.Application{
		ID: "app-2", UserID: "u1", JobID: "job-2",
		Status: domain.ApplicationSent, SentAt: &sentAt, // no thread id, skipped
	})
	require.NoError(t, err)

	mailer := &scriptMailer{inbox: map[string][]domain.InboundMail{
		"thread-1": {
			{From: "dana@acme.com", Snippet: "We'd like to schedule an interview", At: reply1},
			{From: "dana@acme.com", Snippet: "Sending times shortly", At: reply2},
		},
	}}
	events := &eventRecorder{}

	w := usecase.NewReplyWatcher(apps, mailer, events, time.Hour)
	w.Start()
	w.Stop()

	app := apps.get("app-1")
	require.NotNil(t, app.RepliedAt)
	assert.True(t, app.RepliedAt.Equal(reply2), "replied-at tracks the latest message")
	assert.True(t, app.InterviewOffer)

	require.True(t, events.has(domain.EventWorkflowUpdate))
	assert.Contains(t, events.events[0].Data.Message, "Interview signal in a reply from dana@acme.com")

	st := w.Status()
	assert.False(t, st.Running)
	assert.Equal(t, 1, st.LastChecked, "applications without a thread are skipped")
	assert.Equal(t, 1, st.LastReplies)
	require.NotNil(t, st.LastSweepAt)
}

func TestReplyWatcher_OldMessagesAreNotReplies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sentAt := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	repliedAt := sentAt.Add(3 * time.Hour)

	apps := &memApps{}
	_, err := apps.Create(ctx, domain.Application{
		ID: "app-1", UserID: "u1", JobID: "job-1",
		Status: domain.ApplicationSent, ThreadID: "thread-1",
		SentAt: &sentAt, RepliedAt: &repliedAt,
	})
	require.NoError(t, err)

	// Only message predates the recorded reply, so nothing is new.
	mailer := &scriptMailer{inbox: map[string][]domain.InboundMail{
		"thread-1": {{From: "dana@acme.com", Snippet: "old note", At: sentAt.Add(time.Hour)}},
	}}
	events := &eventRecorder{}

	w := usecase.NewReplyWatcher(apps, mailer, events, time.Hour)
	w.Start()
	w.Stop()

	app := apps.get("app-1")
	assert.True(t, app.RepliedAt.Equal(repliedAt), "replied-at is unchanged")
	assert.False(t, events.has(domain.EventWorkflowUpdate))
	assert.Equal(t, 0, w.Status().LastReplies)
}

func TestReplyWatcher_PlainReplyWithoutInterviewSignal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sentAt := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	replyAt := sentAt.Add(time.Hour)

	apps := &memApps{}
	_, err := apps.Create(ctx, domain.Application{
		ID: "app-1", UserID: "u1", JobID: "job-1",
		Status: domain.ApplicationSent, ThreadID: "thread-1", SentAt: &sentAt,
	})
	require.NoError(t, err)
	mailer := &scriptMailer{inbox: map[string][]domain.InboundMail{
		"thread-1": {{From: "dana@acme.com", Snippet: "Thanks, we received your CV", At: replyAt}},
	}}
	events := &eventRecorder{}

	w := usecase.NewReplyWatcher(apps, mailer, events, time.Hour)
	w.Start()
	w.Stop()

	app := apps.get("app-1")
	require.NotNil(t, app.RepliedAt)
	assert.False(t, app.InterviewOffer)
	require.True(t, events.has(domain.EventWorkflowUpdate))
	assert.Contains(t, events.events[0].Data.Message, "New reply from dana@acme.com")
}
