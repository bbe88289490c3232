package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// interviewKeywords mark a reply as a probable interview invitation.
// Matching is substring over the lowercased snippet.
var interviewKeywords = []string{
	"interview", "schedule", "meet", "call", "zoom",
	"invite", "availability", "available", "next step",
}

// InterviewSignal reports whether a reply snippet looks like an
// interview invitation.
func InterviewSignal(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range interviewKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// WatcherStatus is the operator view of the reply watcher.
type WatcherStatus struct {
	Running         bool       `json:"running"`
	IntervalSeconds int        `json:"interval_seconds"`
	LastSweepAt     *time.Time `json:"last_sweep_at,omitempty"`
	LastChecked     int        `json:"last_checked"`
	LastReplies     int        `json:"last_replies"`
}

// ReplyWatcher polls mail threads of sent applications on a fixed
// interval and records replies. One watcher runs per process; Start and
// Stop are idempotent and may be driven by the operator API.
type ReplyWatcher struct {
	Apps         domain.ApplicationRepository
	Mailer       domain.Mailer
	Events       domain.EventSink
	Interval     time.Duration
	SweepTimeout time.Duration

	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	lastSweep   time.Time
	lastChecked int
	lastReplies int
}

// NewReplyWatcher wires the watcher; it does not start it.
func NewReplyWatcher(apps domain.ApplicationRepository, mailer domain.Mailer, events domain.EventSink, interval time.Duration) *ReplyWatcher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReplyWatcher{
		Apps:         apps,
		Mailer:       mailer,
		Events:       events,
		Interval:     interval,
		SweepTimeout: 45 * time.Second,
	}
}

// Start launches the polling loop. Calling Start on a running watcher
// is a no-op.
func (w *ReplyWatcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	// The loop gets its own root: stopping the watcher is an operator
	// action, not tied to any request context.
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx, w.done)
	slog.Info("reply watcher started", slog.Duration("interval", w.Interval))
}

// Stop cancels the loop and waits for the in-flight sweep to finish.
// Calling Stop on a stopped watcher is a no-op.
func (w *ReplyWatcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("reply watcher stopped")
}

// Running reports whether the loop is live.
func (w *ReplyWatcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// Status returns the operator snapshot.
func (w *ReplyWatcher) Status() WatcherStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := WatcherStatus{
		Running:         w.cancel != nil,
		IntervalSeconds: int(w.Interval / time.Second),
		LastChecked:     w.lastChecked,
		LastReplies:     w.lastReplies,
	}
	if !w.lastSweep.IsZero() {
		t := w.lastSweep
		st.LastSweepAt = &t
	}
	return st
}

func (w *ReplyWatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	w.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

// sweepOnce checks every sent application's thread once. Each sweep
// gets its own deadline so a slow mailbox never wedges the loop.
func (w *ReplyWatcher) sweepOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, w.SweepTimeout)
	defer cancel()

	apps, err := w.Apps.ListByStatus(sweepCtx, domain.ApplicationSent)
	if err != nil {
		slog.Error("reply sweep failed to list applications", slog.Any("error", err))
		return
	}

	checked, replies := 0, 0
	for _, app := range apps {
		if app.ThreadID == "" || app.SentAt == nil {
			continue
		}
		checked++
		if w.checkThread(sweepCtx, app) {
			replies++
		}
	}

	w.mu.Lock()
	w.lastSweep = time.Now().UTC()
	w.lastChecked = checked
	w.lastReplies = replies
	w.mu.Unlock()
	slog.Debug("reply sweep finished",
		slog.Int("checked", checked),
		slog.Int("replies", replies))
}

// checkThread reads one application's thread and records any new reply.
// It reports whether a reply was found.
func (w *ReplyWatcher) checkThread(ctx context.Context, app domain.Application) bool {
	since := *app.SentAt
	if app.RepliedAt != nil {
		since = *app.RepliedAt
	}
	msgs, err := w.Mailer.ThreadMessages(ctx, app.UserID, app.ThreadID, since)
	if err != nil {
		slog.Debug("thread read failed",
			slog.String("application_id", app.ID),
			slog.Any("error", err))
		return false
	}
	if len(msgs) == 0 {
		return false
	}

	latest := msgs[0]
	interview := false
	for _, m := range msgs {
		if m.At.After(latest.At) {
			latest = m
		}
		if InterviewSignal(m.Snippet) {
			interview = true
		}
	}

	at := latest.At
	app.RepliedAt = &at
	if interview {
		app.InterviewOffer = true
	}
	if err := w.Apps.Update(ctx, app); err != nil {
		slog.Error("reply update failed",
			slog.String("application_id", app.ID),
			slog.Any("error", err))
		return false
	}

	msg := "New reply from " + latest.From
	if interview {
		msg = "Interview signal in a reply from " + latest.From
	}
	if w.Events != nil {
		w.Events.Emit(app.UserID, domain.Event{
			Type: domain.EventWorkflowUpdate,
			Data: domain.EventData{
				Agent:         "reply_watcher",
				Message:       msg,
				ApplicationID: app.ID,
				JobID:         app.JobID,
				SessionID:     app.SessionID,
			},
		})
	}
	slog.Info("application reply recorded",
		slog.String("application_id", app.ID),
		slog.Bool("interview", interview))
	return true
}
