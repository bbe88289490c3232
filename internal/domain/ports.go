package domain

import "time"

// Ports. Adapters implement these; usecases depend on nothing else.

// ChatMessage is a single turn handed to an LLM provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMClient runs one chat completion through the fallback chain. The
// task label is used for logging and preferred-model selection only.
// Callers parse the returned text themselves.
type LLMClient interface {
	Invoke(ctx Context, task string, msgs []ChatMessage, temperature float64) (string, error)
}

// Embedder returns embedding vectors for texts.
type Embedder interface {
	Embed(ctx Context, texts []string) ([][]float32, error)
}

// SessionRepository is the append-only session log. Append is atomic;
// reads within one user turn observe prior writes of that turn.
// History returns oldest-first; RecentAssistantMetadata newest-first.
type SessionRepository interface {
	Append(ctx Context, m Message) (string, error)
	History(ctx Context, userID, sessionID string, n int) ([]Message, error)
	RecentAssistantMetadata(ctx Context, userID, sessionID string, n int) ([]Message, error)
}

// Profile is the per-user identity and preference record surfaced by
// the settings API. PreferredModel "" or "auto" defers to the chain.
type Profile struct {
	UserID         string    `json:"user_id"`
	FullName       string    `json:"full_name,omitempty"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Location       string    `json:"location,omitempty"`
	Headline       string    `json:"headline,omitempty"`
	PreferredModel string    `json:"preferred_model,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProfileRepository stores profiles keyed by user. Get on a user with
// no saved profile returns ErrNotFound; Save upserts.
type ProfileRepository interface {
	Get(ctx Context, userID string) (Profile, error)
	Save(ctx Context, p Profile) error
}

// CVRepository stores uploaded résumés and their parse state.
type CVRepository interface {
	Create(ctx Context, cv CV) (string, error)
	Get(ctx Context, userID, id string) (CV, error)
	List(ctx Context, userID string) ([]CV, error)
	Delete(ctx Context, userID, id string) error
	SetStatus(ctx Context, id string, status CVStatus, errMsg string) error
	SetParsed(ctx Context, id string, content CVContent) error
}

// TailoredCVRepository stores per-job CV rewrites.
type TailoredCVRepository interface {
	Create(ctx Context, t TailoredCV) (string, error)
	Get(ctx Context, userID, id string) (TailoredCV, error)
	UpdateContent(ctx Context, userID, id string, content CVContent) error
}

// PostingRepository stores aggregated postings per user.
type PostingRepository interface {
	SaveAll(ctx Context, userID string, postings []JobPosting) error
	Get(ctx Context, userID, id string) (JobPosting, error)
	List(ctx Context, userID string, limit int) ([]JobPosting, error)
}

// ApplicationRepository stores the per-job pipeline state.
type ApplicationRepository interface {
	Create(ctx Context, a Application) (string, error)
	Get(ctx Context, userID, id string) (Application, error)
	GetByJob(ctx Context, userID, jobID string) (Application, error)
	List(ctx Context, userID string) ([]Application, error)
	ListByStatus(ctx Context, status ApplicationStatus) ([]Application, error)
	Update(ctx Context, a Application) error
}

// MailCredential is a per-user mailer OAuth record.
type MailCredential struct {
	UserID       string
	Address      string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Active       bool
	UpdatedAt    time.Time
}

// MailCredentialRepository stores mailer credentials. Deactivate is
// called when a send reports the token revoked.
type MailCredentialRepository interface {
	Get(ctx Context, userID string) (MailCredential, error)
	Save(ctx Context, c MailCredential) error
	Deactivate(ctx Context, userID string) error
}

// JobBoard is one job-search provider. Search returns normalised
// postings; implementations never partially fill required fields.
type JobBoard interface {
	Name() string
	Search(ctx Context, q JobQuery) ([]JobPosting, error)
}

// ContactFinder is one recruiter-lookup provider. A miss returns
// ErrNotFound; fabricated addresses are never returned.
type ContactFinder interface {
	Name() string
	Find(ctx Context, company, role, domain string) (HRContact, error)
}

// OutboundMail is one message to send, optionally with an attachment.
type OutboundMail struct {
	To         string
	Subject    string
	Body       string
	Attachment []byte
	AttachName string
}

// InboundMail is one received message in a watched thread.
type InboundMail struct {
	From    string
	Snippet string
	At      time.Time
}

// Mailer sends application mail and reads reply threads. Send failures
// are returned as *SendError so callers can match the kind.
type Mailer interface {
	Send(ctx Context, userID string, mail OutboundMail) (threadID string, err error)
	ThreadMessages(ctx Context, userID, threadID string, since time.Time) ([]InboundMail, error)
}

// PDFRenderer renders a CV to PDF bytes.
type PDFRenderer interface {
	RenderCV(ctx Context, cv CVContent) ([]byte, error)
}

// TextExtractor extracts text from a file at path with the provided
// original filename. Implementations may call external services.
type TextExtractor interface {
	ExtractPath(ctx Context, fileName, path string) (string, error)
}

// ParseCVPayload is the background CV-structuring task.
type ParseCVPayload struct {
	CVID     string `json:"cv_id"`
	UserID   string `json:"user_id"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// TaskQueue enqueues background work.
type TaskQueue interface {
	EnqueueParseCV(ctx Context, p ParseCVPayload) (string, error)
}

// EventSink is the emit side of the per-user event bus. Emit never
// blocks; slow subscribers are dropped by the bus.
type EventSink interface {
	Emit(userID string, e Event)
}

// QuotaLedger tracks (provider, model, period) counters. Increment is
// atomic; Status never errors for unknown keys (zero counter).
type QuotaLedger interface {
	Increment(ctx Context, key QuotaKey, n int64) error
	Status(ctx Context, key QuotaKey) (QuotaStatus, error)
	Snapshot(ctx Context) ([]QuotaEntry, error)
}

// VectorPayload is the stored sidecar of one vector point.
type VectorPayload struct {
	Kind  string `json:"kind"`
	RefID string `json:"ref_id"`
	Text  string `json:"text"`
}

// VectorPoint is one embedding plus payload.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload VectorPayload
}

// VectorHit is one search result.
type VectorHit struct {
	Score   float32
	Payload VectorPayload
}

// VectorIndex stores and searches embeddings for interview context.
type VectorIndex interface {
	Ensure(ctx Context, dim int) error
	Upsert(ctx Context, points []VectorPoint) error
	Search(ctx Context, vector []float32, topK int) ([]VectorHit, error)
}
