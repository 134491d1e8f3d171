package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/m-mizutani/goerr/v2"

	"github.com/framekit/memoria/pkg/model"
)

const sessionColumns = `id, user_id, content, importance_score, confidence, access_count,
	tags, context, created_at, updated_at,
	session_id, interaction_sequence, conversation_state, session_type, active`

// Session persists SessionMemory rows. Session memories are soft
// deleted: Delete and Deactivate flip active to false instead of
// removing rows.
type Session struct {
	base
}

// NewSession creates a repository over the session_memories table
func NewSession(db *DB) *Session {
	return &Session{base{db: db, table: "session_memories"}}
}

// Create inserts a new session memory
func (r *Session) Create(ctx context.Context, m *model.SessionMemory) error {
	tags, err := encodeJSON(m.Tags)
	if err != nil {
		return err
	}
	contextJSON, err := encodeJSON(m.Context)
	if err != nil {
		return err
	}
	state, err := encodeJSON(m.ConversationState)
	if err != nil {
		return err
	}

	active := 0
	if m.Active {
		active = 1
	}

	return r.insert(ctx, `INSERT INTO session_memories (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(m.ID), m.UserID, m.Content, m.ImportanceScore, m.Confidence, m.AccessCount,
		tags, contextJSON, formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
		m.SessionID, m.InteractionSequence, state, m.SessionType, active)
}

// Get returns the memory matching the id, scoped to user_id when one
// is supplied, or nil when absent
func (r *Session) Get(ctx context.Context, id model.MemoryID, userID string) (*model.SessionMemory, error) {
	m, err := scanSession(r.getRow(ctx, sessionColumns, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// List returns the user's session memories, newest first
func (r *Session) List(ctx context.Context, userID string, limit, offset int) ([]*model.SessionMemory, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM session_memories WHERE user_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limitOrDefault(limit), offset)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list session memories", goerr.V("user_id", userID))
	}
	defer rows.Close()

	return collectSession(rows)
}

// ListBySession returns one session's memories in interaction order
func (r *Session) ListBySession(ctx context.Context, userID, sessionID string) ([]*model.SessionMemory, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM session_memories
		 WHERE user_id = ? AND session_id = ? ORDER BY interaction_sequence ASC`,
		userID, sessionID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list session memories", goerr.V("session_id", sessionID))
	}
	defer rows.Close()

	return collectSession(rows)
}

// NextSequence returns the next interaction sequence number for a
// session. Sequences are monotonic per session, starting at 1.
func (r *Session) NextSequence(ctx context.Context, sessionID string) (int, error) {
	var maxSeq sql.NullInt64
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT MAX(interaction_sequence) FROM session_memories WHERE session_id = ?`,
		sessionID).Scan(&maxSeq)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read max sequence", goerr.V("session_id", sessionID))
	}
	return int(maxSeq.Int64) + 1, nil
}

// Deactivate soft-deletes all memories of a session by flipping active
// to false. Returns the number of rows deactivated.
func (r *Session) Deactivate(ctx context.Context, userID, sessionID string) (int, error) {
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE session_memories SET active = 0, updated_at = ?
		 WHERE user_id = ? AND session_id = ? AND active = 1`,
		formatTime(nowUTC()), userID, sessionID)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to deactivate session", goerr.V("session_id", sessionID))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read affected rows")
	}
	return int(n), nil
}

// SoftDelete deactivates a single session memory row. The session kind
// never hard-deletes.
func (r *Session) SoftDelete(ctx context.Context, id model.MemoryID, userID string) error {
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE session_memories SET active = 0, updated_at = ? WHERE id = ? AND user_id = ?`,
		formatTime(nowUTC()), string(id), userID)
	if err != nil {
		return goerr.Wrap(err, "failed to soft delete session memory", goerr.V("id", id))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return goerr.Wrap(model.ErrNotFound, "no session memory deactivated", goerr.V("id", id))
	}
	return nil
}

func collectSession(rows *sql.Rows) ([]*model.SessionMemory, error) {
	var out []*model.SessionMemory
	for rows.Next() {
		m, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// scanSession is the single row-to-record boundary for the session kind
func scanSession(row rowScanner) (*model.SessionMemory, error) {
	var m model.SessionMemory
	var id, tags, contextJSON, createdAt, updatedAt, state string
	var active int

	if err := row.Scan(&id, &m.UserID, &m.Content, &m.ImportanceScore, &m.Confidence, &m.AccessCount,
		&tags, &contextJSON, &createdAt, &updatedAt,
		&m.SessionID, &m.InteractionSequence, &state, &m.SessionType, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to scan session row")
	}

	m.ID = model.MemoryID(id)
	m.MemoryType = model.MemoryTypeSession
	m.Active = active != 0
	if err := decodeJSON(tags, &m.Tags); err != nil {
		return nil, err
	}
	if err := decodeJSON(contextJSON, &m.Context); err != nil {
		return nil, err
	}
	if err := decodeJSON(state, &m.ConversationState); err != nil {
		return nil, err
	}

	var err error
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &m, nil
}
