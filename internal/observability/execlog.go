package observability

import (
	"sync"
	"time"
)

// DefaultExecutionLogSize is the ring capacity when none is given.
const DefaultExecutionLogSize = 512

// ExecutionRecord is one completed unit of work: a chat turn, a queue
// task, an application action. It is what the executions endpoint
// serves.
type ExecutionRecord struct {
	Seq        int64     `json:"seq"`
	Kind       string    `json:"kind"`
	UserID     string    `json:"user_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// ExecutionLog is a fixed-capacity ring of recent executions. Old
// records are overwritten; nothing is persisted. Safe for concurrent
// use.
type ExecutionLog struct {
	mu   sync.Mutex
	buf  []ExecutionRecord
	next int
	full bool
	seq  int64
}

// NewExecutionLog builds a ring with the given capacity; capacity <= 0
// uses DefaultExecutionLogSize.
func NewExecutionLog(capacity int) *ExecutionLog {
	if capacity <= 0 {
		capacity = DefaultExecutionLogSize
	}
	return &ExecutionLog{buf: make([]ExecutionRecord, capacity)}
}

// Record appends one record, stamping its sequence number and, when
// unset, its start time.
func (l *ExecutionLog) Record(rec ExecutionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	rec.Seq = l.seq
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	l.buf[l.next] = rec
	l.next++
	if l.next == len(l.buf) {
		l.next = 0
		l.full = true
	}
}

// Snapshot returns up to limit records, newest first. limit <= 0 means
// everything retained.
func (l *ExecutionLog) Snapshot(limit int) []ExecutionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = len(l.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]ExecutionRecord, 0, limit)
	idx := l.next - 1
	for len(out) < limit {
		if idx < 0 {
			idx = len(l.buf) - 1
		}
		out = append(out, l.buf[idx])
		idx--
	}
	return out
}

// Len reports how many records the ring currently retains.
func (l *ExecutionLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.buf)
	}
	return l.next
}
