package eventbus

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/framekit/memoria/pkg/utils/logging"
)

// Event is one published notification. IDs are ULIDs so arrival order
// and id order agree within a process.
type Event struct {
	ID        string
	Type      string
	Source    string
	Data      map[string]any
	Timestamp time.Time
}

// Handler processes a delivered event
type Handler func(ctx context.Context, ev *Event) error

// Bus is the optional event capability. The memory core works with a
// nil Bus: publishes are best-effort notifications, never part of an
// operation's success contract.
type Bus interface {
	Publish(ctx context.Context, eventType, source string, data map[string]any) error
	Subscribe(pattern string, handler Handler)
}

type subscription struct {
	pattern string
	handler Handler
}

// InProc is an in-process Bus. Delivery is synchronous and in publish
// order; handler errors are logged and swallowed.
type InProc struct {
	mu   sync.RWMutex
	subs []subscription
}

// NewInProc creates an empty in-process bus
func NewInProc() *InProc {
	return &InProc{}
}

// Publish delivers the event to every matching subscriber
func (b *InProc) Publish(ctx context.Context, eventType, source string, data map[string]any) error {
	ev := &Event{
		ID:        ulid.Make().String(),
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	logger := logging.From(ctx)
	for _, sub := range subs {
		if !matchPattern(sub.pattern, eventType) {
			continue
		}
		if err := sub.handler(ctx, ev); err != nil {
			logger.Warn("event handler failed", "error", err, "event_type", eventType, "event_id", ev.ID)
		}
	}

	return nil
}

// Subscribe registers a handler for event types matching pattern. A
// trailing "*" segment matches any suffix, e.g. "session.*".
func (b *InProc) Subscribe(pattern string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{pattern: pattern, handler: handler})
}

func matchPattern(pattern, eventType string) bool {
	if pattern == eventType || pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(eventType, prefix+".")
	}
	return false
}
