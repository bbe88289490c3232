package usecase_test

import (
	"fmt"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// In-memory port fakes shared by the usecase tests. They mirror the
// postgres repos' observable behaviour: generated ids, ErrNotFound on
// misses, newest-first listings.

type memSessions struct {
	mu        sync.Mutex
	msgs      []domain.Message
	appendErr error
}

func (m *memSessions) Append(_ domain.Context, msg domain.Message) (string, error) {
	if m.appendErr != nil {
		return "", m.appendErr
	}
	if err := msg.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = fmt.Sprintf("m-%d", len(m.msgs)+1)
	msg.CreatedAt = time.Now().UTC()
	m.msgs = append(m.msgs, msg)
	return msg.ID, nil
}

func (m *memSessions) History(_ domain.Context, userID, sessionID string, n int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for _, msg := range m.msgs {
		if msg.UserID == userID && msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (m *memSessions) RecentAssistantMetadata(_ domain.Context, userID, sessionID string, n int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for i := len(m.msgs) - 1; i >= 0 && len(out) < n; i-- {
		msg := m.msgs[i]
		if msg.UserID == userID && msg.SessionID == sessionID && msg.Role == domain.RoleAssistant && msg.Metadata != nil {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memSessions) last() domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.msgs) == 0 {
		return domain.Message{}
	}
	return m.msgs[len(m.msgs)-1]
}

type memProfiles struct {
	mu   sync.Mutex
	rows map[string]domain.Profile
}

func (m *memProfiles) Get(_ domain.Context, userID string) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[userID]
	if !ok {
		return domain.Profile{}, fmt.Errorf("op=profiles.get: %w", domain.ErrNotFound)
	}
	return p, nil
}

func (m *memProfiles) Save(_ domain.Context, p domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = make(map[string]domain.Profile)
	}
	m.rows[p.UserID] = p
	return nil
}

type memCVs struct {
	mu        sync.Mutex
	rows      map[string]domain.CV
	order     []string
	createErr error
	listErr   error
}

func (m *memCVs) Create(_ domain.Context, cv domain.CV) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = make(map[string]domain.CV)
	}
	if cv.ID == "" {
		cv.ID = fmt.Sprintf("cv-%d", len(m.order)+1)
	}
	if cv.Status == "" {
		cv.Status = domain.CVQueued
	}
	cv.CreatedAt = time.Now().UTC()
	m.rows[cv.ID] = cv
	m.order = append(m.order, cv.ID)
	return cv.ID, nil
}

func (m *memCVs) Get(_ domain.Context, userID, id string) (domain.CV, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cv, ok := m.rows[id]
	if !ok || cv.UserID != userID {
		return domain.CV{}, fmt.Errorf("op=cv.get: %w", domain.ErrNotFound)
	}
	return cv, nil
}

func (m *memCVs) List(_ domain.Context, userID string) ([]domain.CV, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CV
	for i := len(m.order) - 1; i >= 0; i-- {
		if cv := m.rows[m.order[i]]; cv.UserID == userID {
			out = append(out, cv)
		}
	}
	return out, nil
}

func (m *memCVs) Delete(_ domain.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cv, ok := m.rows[id]
	if !ok || cv.UserID != userID {
		return fmt.Errorf("op=cv.delete: %w", domain.ErrNotFound)
	}
	delete(m.rows, id)
	return nil
}

func (m *memCVs) SetStatus(_ domain.Context, id string, status domain.CVStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cv, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("op=cv.set_status: %w", domain.ErrNotFound)
	}
	cv.Status = status
	cv.Error = errMsg
	m.rows[id] = cv
	return nil
}

func (m *memCVs) SetParsed(_ domain.Context, id string, content domain.CVContent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cv, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("op=cv.set_parsed: %w", domain.ErrNotFound)
	}
	cv.Status = domain.CVReady
	cv.Error = ""
	cv.Parsed = &content
	m.rows[id] = cv
	return nil
}

type memTailored struct {
	mu   sync.Mutex
	rows map[string]domain.TailoredCV
}

func (m *memTailored) Create(_ domain.Context, t domain.TailoredCV) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = make(map[string]domain.TailoredCV)
	}
	if t.ID == "" {
		t.ID = fmt.Sprintf("t-%d", len(m.rows)+1)
	}
	m.rows[t.ID] = t
	return t.ID, nil
}

func (m *memTailored) Get(_ domain.Context, userID, id string) (domain.TailoredCV, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok || t.UserID != userID {
		return domain.TailoredCV{}, fmt.Errorf("op=tailored.get: %w", domain.ErrNotFound)
	}
	return t, nil
}

func (m *memTailored) UpdateContent(_ domain.Context, userID, id string, content domain.CVContent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok || t.UserID != userID {
		return fmt.Errorf("op=tailored.update: %w", domain.ErrNotFound)
	}
	t.Content = content
	m.rows[id] = t
	return nil
}

type memPostings struct {
	mu      sync.Mutex
	rows    map[string]domain.JobPosting // key userID|id
	order   []string
	saveErr error
}

func (m *memPostings) key(userID, id string) string { return userID + "|" + id }

func (m *memPostings) SaveAll(_ domain.Context, userID string, postings []domain.JobPosting) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = make(map[string]domain.JobPosting)
	}
	for _, p := range postings {
		k := m.key(userID, p.ID)
		if _, ok := m.rows[k]; !ok {
			m.order = append(m.order, k)
		}
		m.rows[k] = p
	}
	return nil
}

func (m *memPostings) Get(_ domain.Context, userID, id string) (domain.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[m.key(userID, id)]
	if !ok {
		return domain.JobPosting{}, fmt.Errorf("op=postings.get: %w", domain.ErrNotFound)
	}
	return p, nil
}

func (m *memPostings) List(_ domain.Context, userID string, limit int) ([]domain.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.JobPosting
	for _, k := range m.order {
		p, ok := m.rows[k]
		if !ok || m.key(userID, p.ID) != k {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type memApps struct {
	mu        sync.Mutex
	rows      map[string]domain.Application
	updateErr error
}

func (m *memApps) Create(_ domain.Context, a domain.Application) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = make(map[string]domain.Application)
	}
	if a.ID == "" {
		a.ID = fmt.Sprintf("app-%d", len(m.rows)+1)
	}
	m.rows[a.ID] = a
	return a.ID, nil
}

func (m *memApps) Get(_ domain.Context, userID, id string) (domain.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok || a.UserID != userID {
		return domain.Application{}, fmt.Errorf("op=apps.get: %w", domain.ErrNotFound)
	}
	return a, nil
}

func (m *memApps) GetByJob(_ domain.Context, userID, jobID string) (domain.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.UserID == userID && a.JobID == jobID {
			return a, nil
		}
	}
	return domain.Application{}, fmt.Errorf("op=apps.get_by_job: %w", domain.ErrNotFound)
}

func (m *memApps) List(_ domain.Context, userID string) ([]domain.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Application
	for _, a := range m.rows {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memApps) ListByStatus(_ domain.Context, status domain.ApplicationStatus) ([]domain.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Application
	for _, a := range m.rows {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memApps) Update(_ domain.Context, a domain.Application) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[a.ID]; !ok {
		return fmt.Errorf("op=apps.update: %w", domain.ErrNotFound)
	}
	m.rows[a.ID] = a
	return nil
}

func (m *memApps) get(id string) domain.Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

type memCreds struct {
	mu          sync.Mutex
	rows        map[string]domain.MailCredential
	deactivated int
}

func (m *memCreds) Get(_ domain.Context, userID string) (domain.MailCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[userID]
	if !ok {
		return domain.MailCredential{}, fmt.Errorf("op=creds.get: %w", domain.ErrNotFound)
	}
	return c, nil
}

func (m *memCreds) Save(_ domain.Context, c domain.MailCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = make(map[string]domain.MailCredential)
	}
	m.rows[c.UserID] = c
	return nil
}

func (m *memCreds) Deactivate(_ domain.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivated++
	if c, ok := m.rows[userID]; ok {
		c.Active = false
		m.rows[userID] = c
	}
	return nil
}

// scriptBoard is a JobBoard returning fixed postings.
type scriptBoard struct {
	name     string
	postings []domain.JobPosting
	err      error

	mu      sync.Mutex
	queries []domain.JobQuery
}

func (b *scriptBoard) Name() string { return b.name }

func (b *scriptBoard) Search(_ domain.Context, q domain.JobQuery) ([]domain.JobPosting, error) {
	b.mu.Lock()
	b.queries = append(b.queries, q)
	b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return b.postings, nil
}

// scriptFinder is a ContactFinder delegating to fn.
type scriptFinder struct {
	name string
	fn   func(company, role, companyDomain string) (domain.HRContact, error)

	mu    sync.Mutex
	calls int
}

func (f *scriptFinder) Name() string { return f.name }

func (f *scriptFinder) Find(_ domain.Context, company, role, companyDomain string) (domain.HRContact, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(company, role, companyDomain)
}

func (f *scriptFinder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// notFoundFinder always misses.
func notFoundFinder(name string) *scriptFinder {
	return &scriptFinder{name: name, fn: func(company, _, _ string) (domain.HRContact, error) {
		return domain.HRContact{}, fmt.Errorf("op=%s.find company=%s: %w", name, company, domain.ErrNotFound)
	}}
}

// okFinder returns a verified contact for every company.
func okFinder(name, email string) *scriptFinder {
	return &scriptFinder{name: name, fn: func(company, _, _ string) (domain.HRContact, error) {
		return domain.HRContact{Email: email, Confidence: 0.9, Source: name, Verified: true}, nil
	}}
}

type memCache struct {
	mu   sync.Mutex
	rows map[string]domain.HRContact
	hits int
	puts int
}

func (m *memCache) Get(_ domain.Context, company string) (domain.HRContact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[company]
	if ok {
		m.hits++
	}
	return c, ok
}

func (m *memCache) Put(_ domain.Context, company string, contact domain.HRContact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = make(map[string]domain.HRContact)
	}
	m.puts++
	m.rows[company] = contact
}

// scriptMailer records sends; sendErr scripts a failure.
type scriptMailer struct {
	mu       sync.Mutex
	sent     []domain.OutboundMail
	sendErr  error
	threadID string
	inbox    map[string][]domain.InboundMail
	inboxErr error
}

func (m *scriptMailer) Send(_ domain.Context, _ string, mail domain.OutboundMail) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sent = append(m.sent, mail)
	if m.threadID == "" {
		return "thread-1", nil
	}
	return m.threadID, nil
}

func (m *scriptMailer) ThreadMessages(_ domain.Context, _, threadID string, since time.Time) ([]domain.InboundMail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inboxErr != nil {
		return nil, m.inboxErr
	}
	var out []domain.InboundMail
	for _, msg := range m.inbox[threadID] {
		if msg.At.After(since) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *scriptMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type memRenderer struct {
	out   []byte
	err   error
	calls int
}

func (m *memRenderer) RenderCV(_ domain.Context, _ domain.CVContent) ([]byte, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.out == nil {
		return []byte("%PDF-1.4 fake"), nil
	}
	return m.out, nil
}

type memExtractor struct {
	text string
	err  error
}

func (m *memExtractor) ExtractPath(_ domain.Context, _, _ string) (string, error) {
	return m.text, m.err
}

type memQueue struct {
	mu       sync.Mutex
	enqueued []domain.ParseCVPayload
	err      error
}

func (m *memQueue) EnqueueParseCV(_ domain.Context, p domain.ParseCVPayload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.enqueued = append(m.enqueued, p)
	return fmt.Sprintf("task-%d", len(m.enqueued)), nil
}

// eventRecorder captures emitted events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) Emit(_ string, e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *eventRecorder) has(t domain.EventType) bool {
	for _, got := range r.types() {
		if got == t {
			return true
		}
	}
	return false
}

type memIndex struct {
	mu      sync.Mutex
	dim     int
	points  []domain.VectorPoint
	hits    []domain.VectorHit
	hitsErr error
}

func (m *memIndex) Ensure(_ domain.Context, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dim = dim
	return nil
}

func (m *memIndex) Upsert(_ domain.Context, points []domain.VectorPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, points...)
	return nil
}

func (m *memIndex) Search(_ domain.Context, _ []float32, _ int) ([]domain.VectorHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hitsErr != nil {
		return nil, m.hitsErr
	}
	return m.hits, nil
}

// Shared fixtures.

func testCV() domain.CVContent {
	return domain.CVContent{
		FullName: "Ada Smith",
		Email:    "ada@example.com",
		Summary:  "Backend engineer focused on Go services and Kubernetes.",
		Skills:   []string{"Go", "Kubernetes", "PostgreSQL", "Docker"},
		Experience: []domain.ExperienceEntry{
			{Company: "Prior Co", Title: "Backend Engineer", StartDate: "2018-01", EndDate: "2023-01",
				Bullets: []string{"Built Go microservices handling 10k rps", "Ran PostgreSQL migrations"}},
			{Company: "First Co", Title: "Engineer", StartDate: "2016-01", EndDate: "2018-01",
				Bullets: []string{"Maintained Docker build pipeline"}},
		},
		Education: []domain.EducationEntry{
			{Institution: "State University", Degree: "BSc", Field: "Computer Science", EndYear: "2016"},
		},
		Projects: []domain.ProjectEntry{
			{Name: "opensource-cache", Description: "LRU cache library in Go", Tech: []string{"Go"}},
		},
	}
}

func testPosting(id, company, title string) domain.JobPosting {
	return domain.JobPosting{
		ID:          id,
		Title:       title,
		Company:     company,
		Location:    "Berlin",
		Description: "We need 3+ years building Go services on Kubernetes with PostgreSQL. Bachelor degree preferred.",
		Requirements: []string{
			"Go", "Kubernetes", "PostgreSQL",
		},
		Sources: []string{"adzuna"},
	}
}

func readyCV(id, userID string) domain.CV {
	content := testCV()
	return domain.CV{
		ID:       id,
		UserID:   userID,
		Filename: "ada.pdf",
		Status:   domain.CVReady,
		Parsed:   &content,
	}
}
