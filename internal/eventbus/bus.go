// Package eventbus fans out typed progress events to per-user subscribers.
//
// Delivery is best-effort and at-most-once: emit never blocks, and a
// subscriber whose buffer is full is dropped as if it had disconnected.
// Within a single emitter, frames reach each subscriber in FIFO order.
// Nothing is persisted.
package eventbus

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// DefaultBuffer is the outbound buffer per subscriber. A consumer that
// falls this many frames behind is treated as disconnected.
const DefaultBuffer = 64

// Subscription is one registered consumer. Events arrives on C until
// Close is called or the bus drops the subscriber.
type Subscription struct {
	ID     string
	UserID string
	C      <-chan domain.Event

	bus  *Bus
	ch   chan domain.Event
	once sync.Once
}

// Close unregisters the subscription and closes its channel. Safe to
// call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s.UserID, s.ID, "closed")
	})
}

// Bus is the process-wide event fan-out. Safe for concurrent use.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[string]*Subscription // user id -> sub id -> sub
	buffer  int
	entropy *ulid.MonotonicEntropy
	entMu   sync.Mutex
	closed  bool
}

// New builds a bus with the given per-subscriber buffer size; size <= 0
// uses DefaultBuffer.
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		subs:    make(map[string]map[string]*Subscription),
		buffer:  buffer,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0), //nolint:gosec // ULID entropy only.
	}
}

// Subscribe registers a consumer for one user's events.
func (b *Bus) Subscribe(userID string) *Subscription {
	sub := &Subscription{
		ID:     b.newID(),
		UserID: userID,
		bus:    b,
		ch:     make(chan domain.Event, b.buffer),
	}
	sub.C = sub.ch

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	m := b.subs[userID]
	if m == nil {
		m = make(map[string]*Subscription)
		b.subs[userID] = m
	}
	m[sub.ID] = sub
	observability.EventSubscribers.Inc()
	return sub
}

// Emit delivers e to every subscriber of userID without blocking. The
// event id and timestamp are stamped here when the caller left them
// empty. Subscribers with a full buffer are dropped.
func (b *Bus) Emit(userID string, e domain.Event) {
	if e.ID == "" {
		e.ID = b.newID()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	var stale []*Subscription
	for _, sub := range b.subs[userID] {
		select {
		case sub.ch <- e:
		default:
			stale = append(stale, sub)
		}
	}
	b.mu.RUnlock()

	observability.EventsEmittedTotal.WithLabelValues(string(e.Type)).Inc()
	for _, sub := range stale {
		b.remove(sub.UserID, sub.ID, "slow consumer")
	}
}

// SubscriberCount reports the live subscriptions for one user.
func (b *Bus) SubscriberCount(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}

// Shutdown drops every subscriber and closes their channels. Emit on a
// shut-down bus is a no-op; Subscribe returns an already-closed
// subscription.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for userID, m := range b.subs {
		for id, sub := range m {
			close(sub.ch)
			delete(m, id)
			observability.EventSubscribers.Dec()
		}
		delete(b.subs, userID)
	}
}

func (b *Bus) remove(userID, subID, reason string) {
	b.mu.Lock()
	m := b.subs[userID]
	sub, ok := m[subID]
	if ok {
		delete(m, subID)
		if len(m) == 0 {
			delete(b.subs, userID)
		}
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	close(sub.ch)
	observability.EventSubscribers.Dec()
	slog.Debug("event subscriber removed",
		slog.String("user_id", userID),
		slog.String("sub_id", subID),
		slog.String("reason", reason))
}

func (b *Bus) newID() string {
	b.entMu.Lock()
	defer b.entMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), b.entropy)
	if err != nil {
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return id.String()
}
