package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/m-mizutani/goerr/v2"

	"github.com/framekit/memoria/pkg/model"
)

const proceduralColumns = `id, user_id, content, importance_score, confidence, access_count,
	tags, context, created_at, updated_at,
	skill_type, steps, prerequisites, difficulty_level, success_rate`

// Procedural persists ProceduralMemory rows
type Procedural struct {
	base
}

// NewProcedural creates a repository over the procedural_memories table
func NewProcedural(db *DB) *Procedural {
	return &Procedural{base{db: db, table: "procedural_memories"}}
}

// Create inserts a new procedural memory
func (r *Procedural) Create(ctx context.Context, m *model.ProceduralMemory) error {
	tags, err := encodeJSON(m.Tags)
	if err != nil {
		return err
	}
	contextJSON, err := encodeJSON(m.Context)
	if err != nil {
		return err
	}
	steps, err := encodeJSON(m.Steps)
	if err != nil {
		return err
	}
	prerequisites, err := encodeJSON(m.Prerequisites)
	if err != nil {
		return err
	}

	return r.insert(ctx, `INSERT INTO procedural_memories (`+proceduralColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(m.ID), m.UserID, m.Content, m.ImportanceScore, m.Confidence, m.AccessCount,
		tags, contextJSON, formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
		m.SkillType, steps, prerequisites, string(m.DifficultyLevel), m.SuccessRate)
}

// Get returns the memory matching the id, scoped to user_id when one
// is supplied, or nil when absent
func (r *Procedural) Get(ctx context.Context, id model.MemoryID, userID string) (*model.ProceduralMemory, error) {
	m, err := scanProcedural(r.getRow(ctx, proceduralColumns, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// List returns the user's procedural memories, newest first
func (r *Procedural) List(ctx context.Context, userID string, limit, offset int) ([]*model.ProceduralMemory, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+proceduralColumns+` FROM procedural_memories WHERE user_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limitOrDefault(limit), offset)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list procedural memories", goerr.V("user_id", userID))
	}
	defer rows.Close()

	return collectProcedural(rows)
}

// ListBySkillType returns procedures of one skill type, newest first
func (r *Procedural) ListBySkillType(ctx context.Context, userID, skillType string, limit int) ([]*model.ProceduralMemory, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+proceduralColumns+` FROM procedural_memories
		 WHERE user_id = ? AND skill_type = ? ORDER BY created_at DESC LIMIT ?`,
		userID, skillType, limitOrDefault(limit))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list procedures by skill type", goerr.V("skill_type", skillType))
	}
	defer rows.Close()

	return collectProcedural(rows)
}

func collectProcedural(rows *sql.Rows) ([]*model.ProceduralMemory, error) {
	var out []*model.ProceduralMemory
	for rows.Next() {
		m, err := scanProcedural(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// scanProcedural is the single row-to-record boundary for the procedural kind
func scanProcedural(row rowScanner) (*model.ProceduralMemory, error) {
	var m model.ProceduralMemory
	var id, tags, contextJSON, createdAt, updatedAt, steps, prerequisites, difficulty string

	if err := row.Scan(&id, &m.UserID, &m.Content, &m.ImportanceScore, &m.Confidence, &m.AccessCount,
		&tags, &contextJSON, &createdAt, &updatedAt,
		&m.SkillType, &steps, &prerequisites, &difficulty, &m.SuccessRate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to scan procedural row")
	}

	m.ID = model.MemoryID(id)
	m.MemoryType = model.MemoryTypeProcedural
	m.DifficultyLevel = model.DifficultyLevel(difficulty)
	if err := decodeJSON(tags, &m.Tags); err != nil {
		return nil, err
	}
	if err := decodeJSON(contextJSON, &m.Context); err != nil {
		return nil, err
	}
	if err := decodeJSON(steps, &m.Steps); err != nil {
		return nil, err
	}
	if err := decodeJSON(prerequisites, &m.Prerequisites); err != nil {
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
