package domain

import (
	"fmt"
	"time"
)

// ApplicationStatus advances monotonically along
// draft → pending_approval → cv_approved → sent | send_failed.
type ApplicationStatus string

const (
	ApplicationDraft           ApplicationStatus = "draft"
	ApplicationPendingApproval ApplicationStatus = "pending_approval"
	ApplicationCVApproved      ApplicationStatus = "cv_approved"
	ApplicationSent            ApplicationStatus = "sent"
	ApplicationSendFailed      ApplicationStatus = "send_failed"
)

// CanTransition reports whether moving to next respects the monotonic
// order. A failed send stays retryable, so send_failed may reach sent.
func (s ApplicationStatus) CanTransition(next ApplicationStatus) bool {
	switch s {
	case ApplicationDraft:
		return next == ApplicationPendingApproval
	case ApplicationPendingApproval:
		return next == ApplicationCVApproved
	case ApplicationCVApproved:
		return next == ApplicationSent || next == ApplicationSendFailed
	case ApplicationSendFailed:
		return next == ApplicationSent || next == ApplicationSendFailed
	default:
		return false
	}
}

// Application is one job-specific submission owned by (user, job).
// It owns at most one TailoredCV and exactly one HRContact.
// Invariant: Status == sent implies Contact.Email != "" and SentAt set.
type Application struct {
	ID             string
	UserID         string
	SessionID      string
	JobID          string
	CVID           string
	TailoredCVID   string
	Contact        HRContact
	EmailSubject   string
	EmailBody      string
	PDFPath        string
	ThreadID       string
	Status         ApplicationStatus
	FailureKind    SendFailureKind
	FailureMsg     string
	SentAt         *time.Time
	RepliedAt      *time.Time
	InterviewOffer bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transition mutates Status after validating the move.
func (a *Application) Transition(next ApplicationStatus) error {
	if !a.Status.CanTransition(next) {
		return fmt.Errorf("application %s: %s -> %s: %w", a.ID, a.Status, next, ErrConflict)
	}
	a.Status = next
	return nil
}

// SendFailureKind categorises a failed mail send. The pipeline matches
// on the kind, never on error text.
type SendFailureKind string

const (
	SendFailureTokenRevoked    SendFailureKind = "token_revoked"
	SendFailureTransient       SendFailureKind = "transient"
	SendFailurePermanentConfig SendFailureKind = "permanent_config"
)

// SendError is the structured result of a failed send. Guidance is the
// user-facing next step; Err keeps the raw cause for logs.
type SendError struct {
	Kind     SendFailureKind
	Guidance string
	Err      error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("send failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("send failed (%s)", e.Kind)
}

func (e *SendError) Unwrap() error { return e.Err }
