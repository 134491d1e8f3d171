package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/framekit/memoria/pkg/model"
)

const workingColumns = `id, user_id, content, importance_score, confidence, access_count,
	tags, context, created_at, updated_at,
	task_id, task_context, ttl_seconds, expires_at, priority, status`

// Working persists WorkingMemory rows. Rows are immutable after
// creation except for status; expiry is enforced on the read path and
// by CleanupExpired.
type Working struct {
	base
}

// NewWorking creates a repository over the working_memories table
func NewWorking(db *DB) *Working {
	return &Working{base{db: db, table: "working_memories"}}
}

// Create inserts a new working memory
func (r *Working) Create(ctx context.Context, m *model.WorkingMemory) error {
	tags, err := encodeJSON(m.Tags)
	if err != nil {
		return err
	}
	contextJSON, err := encodeJSON(m.Context)
	if err != nil {
		return err
	}
	taskContext, err := encodeJSON(m.TaskContext)
	if err != nil {
		return err
	}

	return r.insert(ctx, `INSERT INTO working_memories (`+workingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(m.ID), m.UserID, m.Content, m.ImportanceScore, m.Confidence, m.AccessCount,
		tags, contextJSON, formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
		m.TaskID, taskContext, m.TTLSeconds, formatTime(m.ExpiresAt), m.Priority, m.Status)
}

// Get returns the memory matching the id, scoped to user_id when one
// is supplied, or nil when absent
func (r *Working) Get(ctx context.Context, id model.MemoryID, userID string) (*model.WorkingMemory, error) {
	m, err := scanWorking(r.getRow(ctx, workingColumns, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// List returns the user's working memories, newest first, including
// expired rows that have not been swept yet.
func (r *Working) List(ctx context.Context, userID string, limit, offset int) ([]*model.WorkingMemory, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+workingColumns+` FROM working_memories WHERE user_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limitOrDefault(limit), offset)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list working memories", goerr.V("user_id", userID))
	}
	defer rows.Close()

	return collectWorking(rows)
}

// GetActive returns only rows whose expiry is still in the future,
// highest priority first.
func (r *Working) GetActive(ctx context.Context, userID string) ([]*model.WorkingMemory, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+workingColumns+` FROM working_memories
		 WHERE user_id = ? AND expires_at > ?
		 ORDER BY priority DESC, created_at DESC`,
		userID, formatTime(time.Now()))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list active working memories", goerr.V("user_id", userID))
	}
	defer rows.Close()

	return collectWorking(rows)
}

// UpdateStatus changes the status field only; other fields are fixed
// after creation.
func (r *Working) UpdateStatus(ctx context.Context, id model.MemoryID, userID, status string) error {
	return r.Update(ctx, id, userID, map[string]any{"status": status})
}

// CleanupExpired deletes all rows whose expiry has passed. An empty
// userID sweeps globally. Returns the number of rows removed.
func (r *Working) CleanupExpired(ctx context.Context, userID string) (int, error) {
	query := `DELETE FROM working_memories WHERE expires_at <= ?`
	args := []any{formatTime(time.Now())}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	res, err := r.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to cleanup expired working memories")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read affected rows")
	}
	return int(n), nil
}

func collectWorking(rows *sql.Rows) ([]*model.WorkingMemory, error) {
	var out []*model.WorkingMemory
	for rows.Next() {
		m, err := scanWorking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// scanWorking is the single row-to-record boundary for the working kind
func scanWorking(row rowScanner) (*model.WorkingMemory, error) {
	var m model.WorkingMemory
	var id, tags, contextJSON, createdAt, updatedAt, taskContext, expiresAt string

	if err := row.Scan(&id, &m.UserID, &m.Content, &m.ImportanceScore, &m.Confidence, &m.AccessCount,
		&tags, &contextJSON, &createdAt, &updatedAt,
		&m.TaskID, &taskContext, &m.TTLSeconds, &expiresAt, &m.Priority, &m.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to scan working row")
	}

	m.ID = model.MemoryID(id)
	m.MemoryType = model.MemoryTypeWorking
	if err := decodeJSON(tags, &m.Tags); err != nil {
		return nil, err
	}
	if err := decodeJSON(contextJSON, &m.Context); err != nil {
		return nil, err
	}
	if err := decodeJSON(taskContext, &m.TaskContext); err != nil {
		return nil, err
	}

	var err error
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if m.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}

	return &m, nil
}
