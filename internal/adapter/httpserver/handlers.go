package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apiusage "github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/config"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
	"github.com/fairyhunter13/ai-job-agent/internal/eventbus"
	"github.com/fairyhunter13/ai-job-agent/internal/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/usecase"
)

// Server aggregates the use cases and infrastructure behind the HTTP
// API. Construct it with a struct literal; nil checks guard the
// optional readiness probes only.
type Server struct {
	Cfg        config.Config
	Tokens     *TokenIssuer
	Supervisor *usecase.Supervisor
	Sessions   *usecase.SessionService
	CVs        *usecase.CVService
	Search     *usecase.SearchService
	Pipeline   *usecase.PipelineService
	Settings   *usecase.SettingsService
	Watcher    *usecase.ReplyWatcher
	Quota      domain.QuotaLedger
	Bus        *eventbus.Bus
	Executions *observability.ExecutionLog

	Postings domain.PostingRepository
	Apps     domain.ApplicationRepository
	Creds    domain.MailCredentialRepository

	DBCheck        func(ctx context.Context) error
	RedpandaCheck  func(ctx context.Context) error
	QdrantCheck    func(ctx context.Context) error
	TikaCheck      func(ctx context.Context) error
	GotenbergCheck func(ctx context.Context) error
}

// chatResponse is the wire form of one supervisor turn.
type chatResponse struct {
	SessionID string                  `json:"session_id"`
	ReplyText string                  `json:"reply_text"`
	Metadata  *domain.MessageMetadata `json:"metadata,omitempty"`
}

// cvView is the wire form of an uploaded CV row.
type cvView struct {
	ID         string            `json:"id"`
	Filename   string            `json:"filename"`
	Size       int64             `json:"size"`
	Status     domain.CVStatus   `json:"status"`
	Error      string            `json:"error,omitempty"`
	ParsedData *domain.CVContent `json:"parsed_data,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func newCVView(cv domain.CV) cvView {
	return cvView{
		ID:         cv.ID,
		Filename:   cv.Filename,
		Size:       cv.Size,
		Status:     cv.Status,
		Error:      cv.Error,
		ParsedData: cv.Parsed,
		CreatedAt:  cv.CreatedAt,
		UpdatedAt:  cv.UpdatedAt,
	}
}

// applicationView is the wire form of a pipeline application.
type applicationView struct {
	ID             string                   `json:"id"`
	JobID          string                   `json:"job_id"`
	CVID           string                   `json:"cv_id"`
	TailoredCVID   string                   `json:"tailored_cv_id,omitempty"`
	Contact        domain.HRContact         `json:"contact"`
	EmailSubject   string                   `json:"email_subject,omitempty"`
	EmailBody      string                   `json:"email_body,omitempty"`
	ThreadID       string                   `json:"thread_id,omitempty"`
	Status         domain.ApplicationStatus `json:"status"`
	FailureKind    domain.SendFailureKind   `json:"failure_kind,omitempty"`
	FailureMsg     string                   `json:"failure_msg,omitempty"`
	SentAt         *time.Time               `json:"sent_at,omitempty"`
	RepliedAt      *time.Time               `json:"replied_at,omitempty"`
	InterviewOffer bool                     `json:"interview_offer"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

func newApplicationView(a domain.Application) applicationView {
	return applicationView{
		ID:             a.ID,
		JobID:          a.JobID,
		CVID:           a.CVID,
		TailoredCVID:   a.TailoredCVID,
		Contact:        a.Contact,
		EmailSubject:   a.EmailSubject,
		EmailBody:      a.EmailBody,
		ThreadID:       a.ThreadID,
		Status:         a.Status,
		FailureKind:    a.FailureKind,
		FailureMsg:     a.FailureMsg,
		SentAt:         a.SentAt,
		RepliedAt:      a.RepliedAt,
		InterviewOffer: a.InterviewOffer,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

// messageView is the wire form of one history entry.
type messageView struct {
	ID        string                  `json:"id"`
	Role      domain.Role             `json:"role"`
	Text      string                  `json:"text"`
	Metadata  *domain.MessageMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// recordExecution appends one row to the in-memory execution log.
func (s *Server) recordExecution(kind, userID, sessionID, detail string, start time.Time, err error) {
	if s.Executions == nil {
		return
	}
	rec := observability.ExecutionRecord{
		Kind:       kind,
		UserID:     userID,
		SessionID:  sessionID,
		Detail:     detail,
		Status:     "ok",
		StartedAt:  start,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		rec.Status = "error"
		rec.Error = err.Error()
	}
	s.Executions.Record(rec)
}

// snippet trims a chat message down to an execution-log detail.
func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 140 {
		return s[:140]
	}
	return s
}

// ChatHandler runs one supervisor turn: classify, dispatch, reply.
func (s *Server) ChatHandler() http.HandlerFunc {
	type request struct {
		Message   string `json:"message" validate:"required"`
		SessionID string `json:"session_id" validate:"required,max=100"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if verrs := validateStruct(req); verrs != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}
		if err := ValidateID("session_id", req.SessionID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		msg := SanitizeMessage(req.Message)
		if msg == "" {
			writeError(w, r, fmt.Errorf("%w: message is empty", domain.ErrInvalidArgument), nil)
			return
		}
		userID := UserFrom(r)
		start := time.Now()
		reply, err := s.Supervisor.HandleTurn(r.Context(), userID, req.SessionID, msg)
		s.recordExecution("chat_turn", userID, req.SessionID, snippet(msg), start, err)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{SessionID: req.SessionID, ReplyText: reply.Text, Metadata: reply.Metadata})
	}
}

// HistoryHandler returns the last messages of one session, oldest
// first.
func (s *Server) HistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		if err := ValidateID("session_id", sessionID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		limit, err := ParseLimit(r, 50)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		msgs, err := s.Sessions.History(r.Context(), UserFrom(r), sessionID, limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		views := make([]messageView, 0, len(msgs))
		for _, m := range msgs {
			views = append(views, messageView{ID: m.ID, Role: m.Role, Text: m.Text, Metadata: m.Metadata, CreatedAt: m.CreatedAt})
		}
		writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "messages": views})
	}
}

// CVUploadHandler accepts one multipart résumé file and queues the
// background parse.
func (s *Server) CVUploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "too large") {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": "INVALID_ARGUMENT", "message": "payload too large", "details": map[string]any{"max_mb": s.Cfg.MaxUploadMB}}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file required", domain.ErrInvalidArgument), map[string]string{"field": "file"})
			return
		}
		defer func() { _ = file.Close() }()

		userID := UserFrom(r)
		start := time.Now()
		cv, err := s.CVs.Upload(r.Context(), userID, header.Filename, file)
		s.recordExecution("cv_upload", userID, "", header.Filename, start, err)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cv_id": cv.ID, "status": cv.Status, "parsed_data": cv.Parsed})
	}
}

// CVGetHandler polls one CV row; parsed_data is present once the
// background parse has finished.
func (s *Server) CVGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := ValidateID("id", id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		cv, err := s.CVs.Get(r.Context(), UserFrom(r), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, newCVView(cv))
	}
}

// CVListHandler lists the user's CVs newest first.
func (s *Server) CVListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cvs, err := s.CVs.List(r.Context(), UserFrom(r))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		views := make([]cvView, 0, len(cvs))
		for _, cv := range cvs {
			views = append(views, newCVView(cv))
		}
		writeJSON(w, http.StatusOK, map[string]any{"cvs": views})
	}
}

// CVDeleteHandler removes a CV row and its stored file.
func (s *Server) CVDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := ValidateID("id", id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := s.CVs.Delete(r.Context(), UserFrom(r), id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
	}
}

// TailoredUpdateHandler saves user edits to a tailored CV.
func (s *Server) TailoredUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := ValidateID("id", id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var content domain.CVContent
		if err := decodeJSON(r, &content); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if content.FullName == "" {
			writeError(w, r, fmt.Errorf("%w: full_name required", domain.ErrInvalidArgument), map[string]string{"field": "full_name"})
			return
		}
		if err := s.CVs.EditTailored(r.Context(), UserFrom(r), id, content); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "saved": true})
	}
}

// TailoredDownloadHandler renders a tailored CV to PDF and streams it
// as an attachment.
func (s *Server) TailoredDownloadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := ValidateID("id", id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		pdf, name, err := s.CVs.DownloadTailored(r.Context(), UserFrom(r), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pdf)
	}
}

// JobsSearchHandler runs the aggregated job search grounded on the
// newest parsed CV, mirroring what a chat search turn does.
func (s *Server) JobsSearchHandler() http.HandlerFunc {
	type request struct {
		Query     string `json:"query" validate:"required,max=200"`
		SessionID string `json:"session_id" validate:"omitempty,max=100"`
		Limit     int    `json:"limit" validate:"omitempty,min=1,max=20"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if verrs := validateStruct(req); verrs != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}
		userID := UserFrom(r)
		var cv *domain.CVContent
		if cvs, err := s.CVs.List(r.Context(), userID); err == nil {
			for _, c := range cvs {
				if c.Status == domain.CVReady && c.Parsed != nil {
					cv = c.Parsed
					break
				}
			}
		}
		start := time.Now()
		postings, err := s.Search.Search(r.Context(), userID, req.SessionID, SanitizeMessage(req.Query), cv, req.Limit)
		s.recordExecution("job_search", userID, req.SessionID, snippet(req.Query), start, err)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": postings, "count": len(postings)})
	}
}

// JobsListHandler lists stored postings, most recent search first.
func (s *Server) JobsListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := ParseLimit(r, 20)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		postings, err := s.Postings.List(r.Context(), UserFrom(r), limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": postings, "count": len(postings)})
	}
}

// JobGetHandler returns one stored posting.
func (s *Server) JobGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := ValidateID("id", id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		posting, err := s.Postings.Get(r.Context(), UserFrom(r), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, posting)
	}
}

// ApplicationsListHandler lists the user's applications.
func (s *Server) ApplicationsListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apps, err := s.Apps.List(r.Context(), UserFrom(r))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		views := make([]applicationView, 0, len(apps))
		for _, a := range apps {
			views = append(views, newApplicationView(a))
		}
		writeJSON(w, http.StatusOK, map[string]any{"applications": views})
	}
}

// ApplicationApproveHandler approves the tailored CV of a suspended
// application, the REST twin of the __APPROVE_CV__ chat action.
func (s *Server) ApplicationApproveHandler() http.HandlerFunc {
	type request struct {
		SessionID string `json:"session_id" validate:"omitempty,max=100"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		appID := chi.URLParam(r, "id")
		if err := ValidateID("id", appID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		var req request
		if r.ContentLength > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, r, err, nil)
				return
			}
			if verrs := validateStruct(req); verrs != nil {
				writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
				return
			}
		}
		userID := UserFrom(r)
		start := time.Now()
		reply, err := s.Pipeline.ApproveCV(r.Context(), userID, req.SessionID, appID)
		s.recordExecution("approve_cv", userID, req.SessionID, appID, start, err)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"application_id": appID, "reply_text": reply.Text, "metadata": reply.Metadata})
	}
}

// QuotaHandler reports per-(provider, model, period) LLM quota usage.
func (s *Server) QuotaHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.Quota.Snapshot(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"quota": entries})
	}
}

// ExecutionsHandler returns the most recent agent executions.
func (s *Server) ExecutionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := ParseLimit(r, 50)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"executions": s.Executions.Snapshot(limit)})
	}
}

// APIUsageHandler reports outbound third-party API call tallies.
func (s *Server) APIUsageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"providers": apiusage.UsageSnapshot()})
	}
}

// WatcherStatusHandler reports the reply watcher loop and the mail
// credential it depends on.
func (s *Server) WatcherStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connected := false
		address := ""
		if s.Creds != nil {
			if cred, err := s.Creds.Get(r.Context(), UserFrom(r)); err == nil {
				connected = cred.Active
				address = cred.Address
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"watcher":        s.Watcher.Status(),
			"mail_connected": connected,
			"mail_address":   address,
		})
	}
}

// WatcherToggleHandler starts or stops the reply watcher. An explicit
// enabled flag sets the state; an empty body flips it.
func (s *Server) WatcherToggleHandler() http.HandlerFunc {
	type request struct {
		Enabled *bool `json:"enabled"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if r.ContentLength > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, 4<<10)
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, r, err, nil)
				return
			}
		}
		target := !s.Watcher.Running()
		if req.Enabled != nil {
			target = *req.Enabled
		}
		if target {
			s.Watcher.Start()
		} else {
			s.Watcher.Stop()
		}
		writeJSON(w, http.StatusOK, map[string]any{"watcher": s.Watcher.Status()})
	}
}

// ModelGetHandler returns the stored model preference and what it
// resolves to against the pool.
func (s *Server) ModelGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		model, err := s.Settings.Model(r.Context(), UserFrom(r))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		resolved, err := s.Settings.Pool.ResolveModel(model)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"model": model, "resolved": resolved})
	}
}

// ModelSetHandler pins the preferred model; unknown names are rejected.
func (s *Server) ModelSetHandler() http.HandlerFunc {
	type request struct {
		Model string `json:"model" validate:"required,max=100"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 4<<10)
		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if verrs := validateStruct(req); verrs != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}
		userID := UserFrom(r)
		if err := s.Settings.SetPreferredModel(r.Context(), userID, req.Model); err != nil {
			writeError(w, r, err, nil)
			return
		}
		model, err := s.Settings.Model(r.Context(), userID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		resolved, _ := s.Settings.Pool.ResolveModel(model)
		writeJSON(w, http.StatusOK, map[string]any{"model": model, "resolved": resolved})
	}
}

// ProfileGetHandler returns the user profile; a fresh user gets a zero
// profile with their id.
func (s *Server) ProfileGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.Settings.Profile(r.Context(), UserFrom(r))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// ProfilePatchHandler applies partial profile updates.
func (s *Server) ProfilePatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
		var patch usecase.ProfilePatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if patch.Email != nil && *patch.Email != "" {
			if err := getValidator().Var(*patch.Email, "email"); err != nil {
				writeError(w, r, fmt.Errorf("%w: invalid email", domain.ErrInvalidArgument), map[string]string{"email": "email"})
				return
			}
		}
		p, err := s.Settings.UpdateProfile(r.Context(), UserFrom(r), patch)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// HealthzHandler is the liveness probe.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes the process dependencies: Postgres, Redpanda,
// Qdrant, Tika and Gotenberg. A failed check reports 503 with details
// per check.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	run := func(ctx context.Context, name string, fn func(context.Context) error, checks []check) []check {
		if fn == nil {
			return checks
		}
		if err := fn(ctx); err != nil {
			return append(checks, check{Name: name, OK: false, Details: err.Error()})
		}
		return append(checks, check{Name: name, OK: true})
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 5)
		checks = run(ctx, "db", s.DBCheck, checks)
		checks = run(ctx, "redpanda", s.RedpandaCheck, checks)
		checks = run(ctx, "qdrant", s.QdrantCheck, checks)
		checks = run(ctx, "tika", s.TikaCheck, checks)
		checks = run(ctx, "gotenberg", s.GotenbergCheck, checks)
		st := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				st = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
