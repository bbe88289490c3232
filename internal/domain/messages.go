package domain

import (
	"fmt"
	"time"
)

// Role of a chat message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session is an append-only conversation identified by (user, session).
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one turn in a session log.
// Invariant: only assistant messages carry metadata.
type Message struct {
	ID        string
	UserID    string
	SessionID string
	Role      Role
	Text      string
	Metadata  *MessageMetadata
	CreatedAt time.Time
}

// Validate enforces message invariants before append.
func (m Message) Validate() error {
	if m.UserID == "" || m.SessionID == "" {
		return fmt.Errorf("message missing session identity: %w", ErrInvalidArgument)
	}
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return fmt.Errorf("message role %q: %w", m.Role, ErrInvalidArgument)
	}
	if m.Metadata != nil {
		if m.Role != RoleAssistant {
			return fmt.Errorf("metadata on %s message: %w", m.Role, ErrInvalidArgument)
		}
		if err := m.Metadata.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MetadataType discriminates assistant-message metadata. The set is
// closed; continuation logic matches on it to resume a pipeline.
type MetadataType string

const (
	MetaJobResults      MetadataType = "job_results"
	MetaCVReview        MetadataType = "cv_review"
	MetaEmailReview     MetadataType = "email_review"
	MetaApplicationSent MetadataType = "application_sent"
	MetaInterviewReady  MetadataType = "interview_ready"
	MetaCVSelection     MetadataType = "cv_selection"
)

// MessageMetadata is a tagged union: exactly the variant named by Type
// is non-nil. It round-trips through JSON for storage.
type MessageMetadata struct {
	Type            MetadataType         `json:"type"`
	JobResults      *JobResultsMeta      `json:"job_results,omitempty"`
	CVReview        *CVReviewMeta        `json:"cv_review,omitempty"`
	EmailReview     *EmailReviewMeta     `json:"email_review,omitempty"`
	ApplicationSent *ApplicationSentMeta `json:"application_sent,omitempty"`
	InterviewReady  *InterviewReadyMeta  `json:"interview_ready,omitempty"`
	CVSelection     *CVSelectionMeta     `json:"cv_selection,omitempty"`
}

// JobResultsMeta records the postings surfaced by a search turn.
type JobResultsMeta struct {
	Query  string   `json:"query"`
	JobIDs []string `json:"job_ids"`
}

// CVReviewMeta suspends the pipeline pending CV approval.
type CVReviewMeta struct {
	ApplicationID string `json:"application_id"`
	JobID         string `json:"job_id"`
	TailoredCVID  string `json:"tailored_cv_id"`
}

// EmailReviewMeta suspends the pipeline pending email approval.
type EmailReviewMeta struct {
	ApplicationID string `json:"application_id"`
	Subject       string `json:"subject"`
	Recipient     string `json:"recipient"`
}

// ApplicationSentMeta closes a pipeline run and optionally suggests the
// next job to apply to.
type ApplicationSentMeta struct {
	ApplicationID string `json:"application_id"`
	JobID         string `json:"job_id"`
	Recipient     string `json:"recipient"`
	NextJobID     string `json:"next_job_id,omitempty"`
}

// InterviewReadyMeta records generated interview preparation.
type InterviewReadyMeta struct {
	JobID     string `json:"job_id"`
	Questions int    `json:"questions"`
}

// CVSelectionMeta asks the user to pick a CV before an intent proceeds;
// Context is an opaque base64 payload echoed back by the select action.
type CVSelectionMeta struct {
	CVIDs         []string `json:"cv_ids"`
	PendingIntent string   `json:"pending_intent"`
	Context       string   `json:"context,omitempty"`
}

// Validate checks the tag names exactly one non-nil variant.
func (m *MessageMetadata) Validate() error {
	var want, extra int
	variants := []struct {
		t   MetadataType
		set bool
	}{
		{MetaJobResults, m.JobResults != nil},
		{MetaCVReview, m.CVReview != nil},
		{MetaEmailReview, m.EmailReview != nil},
		{MetaApplicationSent, m.ApplicationSent != nil},
		{MetaInterviewReady, m.InterviewReady != nil},
		{MetaCVSelection, m.CVSelection != nil},
	}
	known := false
	for _, v := range variants {
		if v.t == m.Type {
			known = true
			if v.set {
				want++
			}
		} else if v.set {
			extra++
		}
	}
	if !known {
		return fmt.Errorf("metadata type %q: %w", m.Type, ErrInvalidArgument)
	}
	if want != 1 || extra != 0 {
		return fmt.Errorf("metadata variants do not match type %q: %w", m.Type, ErrInvalidArgument)
	}
	return nil
}
