package domain

import "time"

// EventType discriminates progress events on the per-user bus.
type EventType string

const (
	EventAgentStarted      EventType = "agent_started"
	EventAgentProgress     EventType = "agent_progress"
	EventAgentCompleted    EventType = "agent_completed"
	EventAgentError        EventType = "agent_error"
	EventLogEntry          EventType = "log_entry"
	EventWorkflowUpdate    EventType = "workflow_update"
	EventApprovalRequested EventType = "approval_requested"
	EventPong              EventType = "pong"
)

// Event is one frame delivered to subscribers. IDs are ULIDs so frames
// sort by emission time.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	At   time.Time `json:"at"`
	Data EventData `json:"data"`
}

// EventData is the closed payload shared by all event types; fields
// irrelevant to a given type stay empty. No open maps cross the bus.
type EventData struct {
	Agent         string `json:"agent,omitempty"`
	Stage         string `json:"stage,omitempty"`
	Message       string `json:"message,omitempty"`
	Progress      int    `json:"progress,omitempty"`
	Level         string `json:"level,omitempty"`
	Error         string `json:"error,omitempty"`
	ApplicationID string `json:"application_id,omitempty"`
	JobID         string `json:"job_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
}
