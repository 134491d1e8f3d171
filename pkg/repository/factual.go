package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/m-mizutani/goerr/v2"

	"github.com/framekit/memoria/pkg/model"
)

const factualColumns = `id, user_id, content, importance_score, confidence, access_count,
	tags, context, created_at, updated_at,
	subject, predicate, object_value, fact_type, verification_status`

// Factual persists FactualMemory rows
type Factual struct {
	base
}

// NewFactual creates a repository over the factual_memories table
func NewFactual(db *DB) *Factual {
	return &Factual{base{db: db, table: "factual_memories"}}
}

// Create inserts a new factual memory
func (r *Factual) Create(ctx context.Context, m *model.FactualMemory) error {
	tags, err := encodeJSON(m.Tags)
	if err != nil {
		return err
	}
	contextJSON, err := encodeJSON(m.Context)
	if err != nil {
		return err
	}

	return r.insert(ctx, `INSERT INTO factual_memories (`+factualColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(m.ID), m.UserID, m.Content, m.ImportanceScore, m.Confidence, m.AccessCount,
		tags, contextJSON, formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
		m.Subject, m.Predicate, m.ObjectValue, m.FactType, m.VerificationStatus)
}

// Get returns the memory matching the id, scoped to user_id when one
// is supplied, or nil when absent
func (r *Factual) Get(ctx context.Context, id model.MemoryID, userID string) (*model.FactualMemory, error) {
	m, err := scanFactual(r.getRow(ctx, factualColumns, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// List returns the user's factual memories, newest first
func (r *Factual) List(ctx context.Context, userID string, limit, offset int) ([]*model.FactualMemory, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+factualColumns+` FROM factual_memories WHERE user_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limitOrDefault(limit), offset)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list factual memories", goerr.V("user_id", userID))
	}
	defer rows.Close()

	return collectFactual(rows)
}

// FindBySubjectPredicate returns the existing fact for (user_id,
// subject, predicate), or nil when none exists. Used for de-duplication
// before insert.
func (r *Factual) FindBySubjectPredicate(ctx context.Context, userID, subject, predicate string) (*model.FactualMemory, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+factualColumns+` FROM factual_memories
		 WHERE user_id = ? AND subject = ? AND predicate = ? LIMIT 1`,
		userID, subject, predicate)

	m, err := scanFactual(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// SearchBySubject returns facts whose subject matches exactly
func (r *Factual) SearchBySubject(ctx context.Context, userID, subject string, limit int) ([]*model.FactualMemory, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+factualColumns+` FROM factual_memories
		 WHERE user_id = ? AND subject = ? ORDER BY created_at DESC LIMIT ?`,
		userID, subject, limitOrDefault(limit))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search facts by subject", goerr.V("subject", subject))
	}
	defer rows.Close()

	return collectFactual(rows)
}

func collectFactual(rows *sql.Rows) ([]*model.FactualMemory, error) {
	var out []*model.FactualMemory
	for rows.Next() {
		m, err := scanFactual(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// scanFactual is the single row-to-record boundary for the factual kind
func scanFactual(row rowScanner) (*model.FactualMemory, error) {
	var m model.FactualMemory
	var id, tags, contextJSON, createdAt, updatedAt string

	if err := row.Scan(&id, &m.UserID, &m.Content, &m.ImportanceScore, &m.Confidence, &m.AccessCount,
		&tags, &contextJSON, &createdAt, &updatedAt,
		&m.Subject, &m.Predicate, &m.ObjectValue, &m.FactType, &m.VerificationStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to scan factual row")
	}

	m.ID = model.MemoryID(id)
	m.MemoryType = model.MemoryTypeFactual
	if err := decodeJSON(tags, &m.Tags); err != nil {
		return nil, err
	}
	if err := decodeJSON(contextJSON, &m.Context); err != nil {
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
