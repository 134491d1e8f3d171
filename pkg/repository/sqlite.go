package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/framekit/memoria/pkg/model"
)

// timeLayout is fixed-width so that lexicographic ordering of the
// stored text matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const defaultListLimit = 100

// DB wraps the SQLite handle shared by the per-kind repositories.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the SQLite database at the given path and
// applies the schema.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create db directory", goerr.V("dir", dir))
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open db", goerr.V("path", dbPath))
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, goerr.Wrap(err, "failed to migrate schema")
	}

	return db, nil
}

// Close closes the underlying database handle
func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS factual_memories (
		id                  TEXT PRIMARY KEY,
		user_id             TEXT NOT NULL,
		content             TEXT NOT NULL,
		importance_score    REAL NOT NULL DEFAULT 0.5,
		confidence          REAL NOT NULL DEFAULT 0.8,
		access_count        INTEGER NOT NULL DEFAULT 0,
		tags                TEXT NOT NULL DEFAULT '[]',
		context             TEXT NOT NULL DEFAULT '{}',
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL,
		subject             TEXT NOT NULL,
		predicate           TEXT NOT NULL,
		object_value        TEXT NOT NULL,
		fact_type           TEXT NOT NULL DEFAULT '',
		verification_status TEXT NOT NULL DEFAULT 'unverified'
	);
	CREATE INDEX IF NOT EXISTS idx_factual_user ON factual_memories(user_id);
	CREATE INDEX IF NOT EXISTS idx_factual_created ON factual_memories(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_factual_triple ON factual_memories(user_id, subject, predicate);

	CREATE TABLE IF NOT EXISTS episodic_memories (
		id                TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL,
		content           TEXT NOT NULL,
		importance_score  REAL NOT NULL DEFAULT 0.5,
		confidence        REAL NOT NULL DEFAULT 0.8,
		access_count      INTEGER NOT NULL DEFAULT 0,
		tags              TEXT NOT NULL DEFAULT '[]',
		context           TEXT NOT NULL DEFAULT '{}',
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL,
		event_type        TEXT NOT NULL DEFAULT '',
		location          TEXT NOT NULL DEFAULT '',
		participants      TEXT NOT NULL DEFAULT '[]',
		emotional_valence REAL NOT NULL DEFAULT 0,
		vividness         REAL NOT NULL DEFAULT 0,
		episode_date      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_episodic_user ON episodic_memories(user_id);
	CREATE INDEX IF NOT EXISTS idx_episodic_created ON episodic_memories(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_episodic_event ON episodic_memories(user_id, event_type);

	CREATE TABLE IF NOT EXISTS procedural_memories (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		content          TEXT NOT NULL,
		importance_score REAL NOT NULL DEFAULT 0.5,
		confidence       REAL NOT NULL DEFAULT 0.8,
		access_count     INTEGER NOT NULL DEFAULT 0,
		tags             TEXT NOT NULL DEFAULT '[]',
		context          TEXT NOT NULL DEFAULT '{}',
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL,
		skill_type       TEXT NOT NULL DEFAULT '',
		steps            TEXT NOT NULL DEFAULT '[]',
		prerequisites    TEXT NOT NULL DEFAULT '[]',
		difficulty_level TEXT NOT NULL DEFAULT 'medium',
		success_rate     REAL NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_procedural_user ON procedural_memories(user_id);
	CREATE INDEX IF NOT EXISTS idx_procedural_created ON procedural_memories(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_procedural_skill ON procedural_memories(user_id, skill_type);

	CREATE TABLE IF NOT EXISTS semantic_memories (
		id                TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL,
		content           TEXT NOT NULL,
		importance_score  REAL NOT NULL DEFAULT 0.5,
		confidence        REAL NOT NULL DEFAULT 0.8,
		access_count      INTEGER NOT NULL DEFAULT 0,
		tags              TEXT NOT NULL DEFAULT '[]',
		context           TEXT NOT NULL DEFAULT '{}',
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL,
		concept_type      TEXT NOT NULL DEFAULT '',
		definition        TEXT NOT NULL DEFAULT '',
		properties        TEXT NOT NULL DEFAULT '{}',
		abstraction_level TEXT NOT NULL DEFAULT 'medium',
		related_concepts  TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_semantic_user ON semantic_memories(user_id);
	CREATE INDEX IF NOT EXISTS idx_semantic_created ON semantic_memories(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_semantic_concept ON semantic_memories(user_id, concept_type);

	CREATE TABLE IF NOT EXISTS working_memories (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		content          TEXT NOT NULL,
		importance_score REAL NOT NULL DEFAULT 0.5,
		confidence       REAL NOT NULL DEFAULT 0.8,
		access_count     INTEGER NOT NULL DEFAULT 0,
		tags             TEXT NOT NULL DEFAULT '[]',
		context          TEXT NOT NULL DEFAULT '{}',
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL,
		task_id          TEXT NOT NULL DEFAULT '',
		task_context     TEXT NOT NULL DEFAULT '{}',
		ttl_seconds      INTEGER NOT NULL,
		expires_at       TEXT NOT NULL,
		priority         INTEGER NOT NULL DEFAULT 0,
		status           TEXT NOT NULL DEFAULT 'active'
	);
	CREATE INDEX IF NOT EXISTS idx_working_user ON working_memories(user_id);
	CREATE INDEX IF NOT EXISTS idx_working_created ON working_memories(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_working_expires ON working_memories(expires_at);

	CREATE TABLE IF NOT EXISTS session_memories (
		id                   TEXT PRIMARY KEY,
		user_id              TEXT NOT NULL,
		content              TEXT NOT NULL,
		importance_score     REAL NOT NULL DEFAULT 0.5,
		confidence           REAL NOT NULL DEFAULT 0.8,
		access_count         INTEGER NOT NULL DEFAULT 0,
		tags                 TEXT NOT NULL DEFAULT '[]',
		context              TEXT NOT NULL DEFAULT '{}',
		created_at           TEXT NOT NULL,
		updated_at           TEXT NOT NULL,
		session_id           TEXT NOT NULL,
		interaction_sequence INTEGER NOT NULL DEFAULT 0,
		conversation_state   TEXT NOT NULL DEFAULT '{}',
		session_type         TEXT NOT NULL DEFAULT 'conversation',
		active               INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_session_user ON session_memories(user_id);
	CREATE INDEX IF NOT EXISTS idx_session_created ON session_memories(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_session_session ON session_memories(session_id, interaction_sequence);
	`

	_, err := d.conn.Exec(schema)
	return err
}

// base carries the operations shared by every per-kind repository.
type base struct {
	db    *DB
	table string
}

// Count returns the number of rows owned by userID
func (b *base) Count(ctx context.Context, userID string) (int, error) {
	var n int
	err := b.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+b.table+` WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count rows", goerr.V("table", b.table))
	}
	return n, nil
}

// Delete removes the row matching (id, user_id)
func (b *base) Delete(ctx context.Context, id model.MemoryID, userID string) error {
	res, err := b.db.conn.ExecContext(ctx,
		`DELETE FROM `+b.table+` WHERE id = ? AND user_id = ?`, string(id), userID)
	if err != nil {
		return goerr.Wrap(err, "failed to delete row", goerr.V("table", b.table), goerr.V("id", id))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return goerr.Wrap(model.ErrNotFound, "no row deleted", goerr.V("table", b.table), goerr.V("id", id))
	}
	return nil
}

// Update applies a partial update to the row matching (id, user_id) and
// refreshes updated_at. Column names are repository-internal; callers go
// through the typed repositories.
func (b *base) Update(ctx context.Context, id model.MemoryID, userID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	query := `UPDATE ` + b.table + ` SET updated_at = ?`
	args := []any{formatTime(time.Now().UTC())}
	for _, col := range cols {
		query += `, ` + col + ` = ?`
		args = append(args, fields[col])
	}
	query += ` WHERE id = ? AND user_id = ?`
	args = append(args, string(id), userID)

	res, err := b.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return goerr.Wrap(err, "failed to update row", goerr.V("table", b.table), goerr.V("id", id))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return goerr.Wrap(model.ErrNotFound, "no row updated", goerr.V("table", b.table), goerr.V("id", id))
	}
	return nil
}

// IncrementAccess bumps access_count without touching updated_at; a
// tracked read is not a mutation.
func (b *base) IncrementAccess(ctx context.Context, id model.MemoryID, userID string) error {
	_, err := b.db.conn.ExecContext(ctx,
		`UPDATE `+b.table+` SET access_count = access_count + 1 WHERE id = ? AND user_id = ?`,
		string(id), userID)
	if err != nil {
		return goerr.Wrap(err, "failed to increment access count", goerr.V("table", b.table), goerr.V("id", id))
	}
	return nil
}

// ListIDs returns every row id in the table, for reconciliation against
// the vector store.
func (b *base) ListIDs(ctx context.Context) ([]model.MemoryID, error) {
	rows, err := b.db.conn.QueryContext(ctx, `SELECT id FROM `+b.table)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list ids", goerr.V("table", b.table))
	}
	defer rows.Close()

	var ids []model.MemoryID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, goerr.Wrap(err, "failed to scan id")
		}
		ids = append(ids, model.MemoryID(id))
	}
	return ids, rows.Err()
}

// getRow looks up a single row by id. The user filter applies only
// when userID is non-empty; an empty userID matches the row regardless
// of owner.
func (b *base) getRow(ctx context.Context, columns string, id model.MemoryID, userID string) *sql.Row {
	query := `SELECT ` + columns + ` FROM ` + b.table + ` WHERE id = ?`
	args := []any{string(id)}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	return b.db.conn.QueryRowContext(ctx, query, args...)
}

func (b *base) insert(ctx context.Context, query string, args ...any) error {
	res, err := b.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return goerr.Wrap(err, "failed to insert row", goerr.V("table", b.table))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to read affected rows")
	}
	if n != 1 {
		return goerr.Wrap(model.ErrStoreWriteFailed, "insert affected no row", goerr.V("table", b.table))
	}
	return nil
}

// rowScanner abstracts over *sql.Row and *sql.Rows so each kind has a
// single row-to-record mapping function.
type rowScanner interface {
	Scan(dest ...any) error
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, goerr.Wrap(err, "failed to parse stored timestamp", goerr.V("value", s))
	}
	return t, nil
}

func encodeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode json column")
	}
	return string(raw), nil
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return goerr.Wrap(err, "failed to decode json column", goerr.V("value", s))
	}
	return nil
}
