package ingest

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/framekit/memoria/pkg/eventbus"
	"github.com/framekit/memoria/pkg/utils/logging"
)

const (
	// EventMessageSent carries one session message: user_id,
	// session_id, role and content in Data.
	EventMessageSent = "session.message.sent"

	// EventSessionEnded signals session closure: user_id and
	// session_id in Data.
	EventSessionEnded = "session.ended"
)

// Handlers wires the ingestion pipeline to an event bus. Replays of an
// already-processed id are dropped without touching the buffer. An id
// is recorded only once its event passes field validation, so a
// corrected replay of a malformed event is still accepted.
type Handlers struct {
	buffer   *Buffer
	dedupe   Deduper
	recorder Recorder
}

// NewHandlers creates the bus-facing ingestion handlers
func NewHandlers(buffer *Buffer, dedupe Deduper, recorder Recorder) *Handlers {
	return &Handlers{buffer: buffer, dedupe: dedupe, recorder: recorder}
}

// Register subscribes the handlers to their event types
func (h *Handlers) Register(bus eventbus.Bus) {
	bus.Subscribe(EventMessageSent, h.HandleMessageSent)
	bus.Subscribe(EventSessionEnded, h.HandleSessionEnded)
}

// HandleMessageSent buffers one session message, triggering extraction
// when the session's buffer fills
func (h *Handlers) HandleMessageSent(ctx context.Context, ev *eventbus.Event) error {
	userID := stringField(ev, "user_id")
	sessionID := stringField(ev, "session_id")
	if userID == "" || sessionID == "" {
		return goerr.New("message event missing user_id or session_id", goerr.V("event_id", ev.ID))
	}

	if h.dedupe.Seen(ev.ID) {
		logging.From(ctx).Debug("duplicate event dropped", "event_id", ev.ID, "event_type", ev.Type)
		return nil
	}

	return h.buffer.Append(ctx, userID, sessionID, stringField(ev, "role"), stringField(ev, "content"))
}

// HandleSessionEnded drains the session's remaining buffer, then
// deactivates its stored session memories
func (h *Handlers) HandleSessionEnded(ctx context.Context, ev *eventbus.Event) error {
	userID := stringField(ev, "user_id")
	sessionID := stringField(ev, "session_id")
	if userID == "" || sessionID == "" {
		return goerr.New("session end event missing user_id or session_id", goerr.V("event_id", ev.ID))
	}

	if h.dedupe.Seen(ev.ID) {
		logging.From(ctx).Debug("duplicate event dropped", "event_id", ev.ID, "event_type", ev.Type)
		return nil
	}

	if err := h.buffer.FinalFlush(ctx, sessionID); err != nil {
		return goerr.Wrap(err, "failed to flush session buffer", goerr.V("session_id", sessionID))
	}

	n, err := h.recorder.EndSession(ctx, userID, sessionID)
	if err != nil {
		return goerr.Wrap(err, "failed to end session", goerr.V("session_id", sessionID))
	}
	logging.From(ctx).Info("session ended", "session_id", sessionID, "deactivated", n)
	return nil
}

func stringField(ev *eventbus.Event, key string) string {
	v, _ := ev.Data[key].(string)
	return v
}
