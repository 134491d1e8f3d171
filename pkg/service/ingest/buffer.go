package ingest

import (
	"context"
	"strings"
	"sync"

	"github.com/framekit/memoria/pkg/model"
	"github.com/framekit/memoria/pkg/utils/logging"
)

const (
	defaultFlushThreshold = 4

	batchImportance = 0.5
	finalImportance = 0.7
)

// Recorder is the subset of the orchestrator the ingestion pipeline
// needs: memory extraction from buffered dialog and session closure.
type Recorder interface {
	StoreFactualMemory(ctx context.Context, userID, dialog string, importance float64) (*model.OperationResult, error)
	StoreEpisodicMemory(ctx context.Context, userID, dialog string, importance float64) (*model.OperationResult, error)
	EndSession(ctx context.Context, userID, sessionID string) (int, error)
}

type bufferedMessage struct {
	Role    string
	Content string
}

type sessionState struct {
	userID   string
	messages []bufferedMessage
}

// Buffer accumulates session messages and triggers memory extraction
// once a session reaches the flush threshold. Accumulation is
// per-session and ordered by arrival.
type Buffer struct {
	mu        sync.Mutex
	threshold int
	recorder  Recorder
	sessions  map[string]*sessionState
}

// NewBuffer creates a buffer that flushes every threshold messages.
// A non-positive threshold falls back to 4.
func NewBuffer(recorder Recorder, threshold int) *Buffer {
	if threshold <= 0 {
		threshold = defaultFlushThreshold
	}
	return &Buffer{
		threshold: threshold,
		recorder:  recorder,
		sessions:  make(map[string]*sessionState),
	}
}

// Append adds a message to the session's buffer. When the buffer
// reaches the threshold it is drained and handed to the recorder as a
// single dialog transcript.
func (b *Buffer) Append(ctx context.Context, userID, sessionID, role, content string) error {
	b.mu.Lock()
	st, ok := b.sessions[sessionID]
	if !ok {
		st = &sessionState{userID: userID}
		b.sessions[sessionID] = st
	}
	st.messages = append(st.messages, bufferedMessage{Role: role, Content: content})

	if len(st.messages) < b.threshold {
		b.mu.Unlock()
		return nil
	}

	batch := st.messages
	st.messages = nil
	b.mu.Unlock()

	b.extract(ctx, userID, batch, batchImportance)
	return nil
}

// FinalFlush drains whatever remains in the session's buffer at a
// higher importance and forgets the session. Safe to call for a
// session with no buffered messages.
func (b *Buffer) FinalFlush(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	st, ok := b.sessions[sessionID]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	delete(b.sessions, sessionID)
	b.mu.Unlock()

	if len(st.messages) == 0 {
		return nil
	}
	b.extract(ctx, st.userID, st.messages, finalImportance)
	return nil
}

// Pending returns how many messages are buffered for the session
func (b *Buffer) Pending(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.sessions[sessionID]
	if !ok {
		return 0
	}
	return len(st.messages)
}

func (b *Buffer) extract(ctx context.Context, userID string, batch []bufferedMessage, importance float64) {
	dialog := renderDialog(batch)
	logger := logging.From(ctx)

	if _, err := b.recorder.StoreFactualMemory(ctx, userID, dialog, importance); err != nil {
		logger.Warn("factual extraction from buffered dialog failed", "error", err, "user_id", userID)
	}
	if _, err := b.recorder.StoreEpisodicMemory(ctx, userID, dialog, importance); err != nil {
		logger.Warn("episodic extraction from buffered dialog failed", "error", err, "user_id", userID)
	}
}

func renderDialog(batch []bufferedMessage) string {
	lines := make([]string, 0, len(batch))
	for _, m := range batch {
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}
