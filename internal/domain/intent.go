package domain

import (
	"fmt"
	"strings"
)

// Intent labels the purpose of a user turn. The set is closed; the
// classifier must map anything else to IntentGeneral.
type Intent string

const (
	IntentJobSearch     Intent = "job_search"
	IntentCVUpload      Intent = "cv_upload"
	IntentCVTailor      Intent = "cv_tailor"
	IntentInterviewPrep Intent = "interview_prep"
	IntentCVAnalysis    Intent = "cv_analysis"
	IntentStatus        Intent = "status"
	IntentContinuation  Intent = "continuation"
	IntentGeneral       Intent = "general"
)

// ParseIntent maps a label (as returned by an LLM) onto the closed set.
func ParseIntent(s string) (Intent, bool) {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentJobSearch:
		return IntentJobSearch, true
	case IntentCVUpload:
		return IntentCVUpload, true
	case IntentCVTailor:
		return IntentCVTailor, true
	case IntentInterviewPrep:
		return IntentInterviewPrep, true
	case IntentCVAnalysis:
		return IntentCVAnalysis, true
	case IntentStatus:
		return IntentStatus, true
	case IntentContinuation:
		return IntentContinuation, true
	case IntentGeneral:
		return IntentGeneral, true
	}
	return IntentGeneral, false
}

// Action is a reserved chat-message prefix that bypasses intent
// classification and dispatches directly.
type Action string

const (
	ActionTailorApply   Action = "__TAILOR_APPLY__"
	ActionApproveCV     Action = "__APPROVE_CV__"
	ActionSendEmail     Action = "__SEND_EMAIL__"
	ActionRegenerateCV  Action = "__REGENERATE_CV__"
	ActionPrepInterview Action = "__PREP_INTERVIEW__"
	ActionEditCV        Action = "__EDIT_CV__"
	ActionSelectCV      Action = "__SELECT_CV__"
)

// actionSpecs lists every reserved action with its exact argument
// count. The final argument absorbs any remaining colons (JSON bodies,
// base64 context).
var actionSpecs = []struct {
	action Action
	argc   int
}{
	{ActionTailorApply, 1},
	{ActionApproveCV, 1},
	{ActionSendEmail, 1},
	{ActionRegenerateCV, 1},
	{ActionPrepInterview, 1},
	{ActionEditCV, 2},
	{ActionSelectCV, 3},
}

// ActionMessage is a parsed action-prefixed chat message.
type ActionMessage struct {
	Action Action
	Args   []string
}

// ParseAction parses an action-prefixed message. ok is false when text
// does not start with a reserved prefix marker at all; a "__…__" prefix
// outside the closed set, or a wrong argument count, is rejected with
// ErrInvalidArgument so the caller can surface a specific reason.
func ParseAction(text string) (ActionMessage, bool, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "__") {
		return ActionMessage{}, false, nil
	}
	for _, spec := range actionSpecs {
		prefix := string(spec.action)
		if text != prefix && !strings.HasPrefix(text, prefix+":") {
			continue
		}
		if text == prefix {
			return ActionMessage{}, true, fmt.Errorf("action %s missing arguments: %w", spec.action, ErrInvalidArgument)
		}
		rest := text[len(prefix)+1:]
		args := strings.SplitN(rest, ":", spec.argc)
		if len(args) != spec.argc || args[0] == "" {
			return ActionMessage{}, true, fmt.Errorf("action %s wants %d arguments: %w", spec.action, spec.argc, ErrInvalidArgument)
		}
		return ActionMessage{Action: spec.action, Args: args}, true, nil
	}
	return ActionMessage{}, true, fmt.Errorf("unknown action prefix: %w", ErrInvalidArgument)
}
