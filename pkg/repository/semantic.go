package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/m-mizutani/goerr/v2"

	"github.com/framekit/memoria/pkg/model"
)

const semanticColumns = `id, user_id, content, importance_score, confidence, access_count,
	tags, context, created_at, updated_at,
	concept_type, definition, properties, abstraction_level, related_concepts`

// Semantic persists SemanticMemory rows
type Semantic struct {
	base
}

// NewSemantic creates a repository over the semantic_memories table
func NewSemantic(db *DB) *Semantic {
	return &Semantic{base{db: db, table: "semantic_memories"}}
}

// Create inserts a new semantic memory
func (r *Semantic) Create(ctx context.Context, m *model.SemanticMemory) error {
	tags, err := encodeJSON(m.Tags)
	if err != nil {
		return err
	}
	contextJSON, err := encodeJSON(m.Context)
	if err != nil {
		return err
	}
	properties, err := encodeJSON(m.Properties)
	if err != nil {
		return err
	}
	related, err := encodeJSON(m.RelatedConcepts)
	if err != nil {
		return err
	}

	return r.insert(ctx, `INSERT INTO semantic_memories (`+semanticColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(m.ID), m.UserID, m.Content, m.ImportanceScore, m.Confidence, m.AccessCount,
		tags, contextJSON, formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
		m.ConceptType, m.Definition, properties, string(m.AbstractionLevel), related)
}

// Get returns the memory matching the id, scoped to user_id when one
// is supplied, or nil when absent
func (r *Semantic) Get(ctx context.Context, id model.MemoryID, userID string) (*model.SemanticMemory, error) {
	m, err := scanSemantic(r.getRow(ctx, semanticColumns, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// List returns the user's semantic memories, newest first
func (r *Semantic) List(ctx context.Context, userID string, limit, offset int) ([]*model.SemanticMemory, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+semanticColumns+` FROM semantic_memories WHERE user_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limitOrDefault(limit), offset)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list semantic memories", goerr.V("user_id", userID))
	}
	defer rows.Close()

	return collectSemantic(rows)
}

// FindByConcept returns the first concept whose content matches the
// concept name exactly, or nil when none exists.
func (r *Semantic) FindByConcept(ctx context.Context, userID, concept string) (*model.SemanticMemory, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+semanticColumns+` FROM semantic_memories
		 WHERE user_id = ? AND content = ? LIMIT 1`,
		userID, concept)

	m, err := scanSemantic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// ListByConceptType returns concepts of one concept type, newest first
func (r *Semantic) ListByConceptType(ctx context.Context, userID, conceptType string, limit int) ([]*model.SemanticMemory, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+semanticColumns+` FROM semantic_memories
		 WHERE user_id = ? AND concept_type = ? ORDER BY created_at DESC LIMIT ?`,
		userID, conceptType, limitOrDefault(limit))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list concepts by type", goerr.V("concept_type", conceptType))
	}
	defer rows.Close()

	return collectSemantic(rows)
}

func collectSemantic(rows *sql.Rows) ([]*model.SemanticMemory, error) {
	var out []*model.SemanticMemory
	for rows.Next() {
		m, err := scanSemantic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// scanSemantic is the single row-to-record boundary for the semantic kind
func scanSemantic(row rowScanner) (*model.SemanticMemory, error) {
	var m model.SemanticMemory
	var id, tags, contextJSON, createdAt, updatedAt, properties, abstraction, related string

	if err := row.Scan(&id, &m.UserID, &m.Content, &m.ImportanceScore, &m.Confidence, &m.AccessCount,
		&tags, &contextJSON, &createdAt, &updatedAt,
		&m.ConceptType, &m.Definition, &properties, &abstraction, &related); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to scan semantic row")
	}

	m.ID = model.MemoryID(id)
	m.MemoryType = model.MemoryTypeSemantic
	m.AbstractionLevel = model.AbstractionLevel(abstraction)
	if err := decodeJSON(tags, &m.Tags); err != nil {
		return nil, err
	}
	if err := decodeJSON(contextJSON, &m.Context); err != nil {
		return nil, err
	}
	if err := decodeJSON(properties, &m.Properties); err != nil {
		return nil, err
	}
	if err := decodeJSON(related, &m.RelatedConcepts); err != nil {
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
