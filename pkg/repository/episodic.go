package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/framekit/memoria/pkg/model"
)

const episodicColumns = `id, user_id, content, importance_score, confidence, access_count,
	tags, context, created_at, updated_at,
	event_type, location, participants, emotional_valence, vividness, episode_date`

// Episodic persists EpisodicMemory rows
type Episodic struct {
	base
}

// NewEpisodic creates a repository over the episodic_memories table
func NewEpisodic(db *DB) *Episodic {
	return &Episodic{base{db: db, table: "episodic_memories"}}
}

// Create inserts a new episodic memory
func (r *Episodic) Create(ctx context.Context, m *model.EpisodicMemory) error {
	tags, err := encodeJSON(m.Tags)
	if err != nil {
		return err
	}
	contextJSON, err := encodeJSON(m.Context)
	if err != nil {
		return err
	}
	participants, err := encodeJSON(m.Participants)
	if err != nil {
		return err
	}

	return r.insert(ctx, `INSERT INTO episodic_memories (`+episodicColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(m.ID), m.UserID, m.Content, m.ImportanceScore, m.Confidence, m.AccessCount,
		tags, contextJSON, formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
		m.EventType, m.Location, participants, m.EmotionalValence, m.Vividness,
		formatTime(m.EpisodeDate))
}

// Get returns the memory matching the id, scoped to user_id when one
// is supplied, or nil when absent
func (r *Episodic) Get(ctx context.Context, id model.MemoryID, userID string) (*model.EpisodicMemory, error) {
	m, err := scanEpisodic(r.getRow(ctx, episodicColumns, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// List returns the user's episodic memories, newest first
func (r *Episodic) List(ctx context.Context, userID string, limit, offset int) ([]*model.EpisodicMemory, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+episodicColumns+` FROM episodic_memories WHERE user_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limitOrDefault(limit), offset)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list episodic memories", goerr.V("user_id", userID))
	}
	defer rows.Close()

	return collectEpisodic(rows)
}

// ListByEventType returns episodes of one event type, newest first
func (r *Episodic) ListByEventType(ctx context.Context, userID, eventType string, limit int) ([]*model.EpisodicMemory, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+episodicColumns+` FROM episodic_memories
		 WHERE user_id = ? AND event_type = ? ORDER BY created_at DESC LIMIT ?`,
		userID, eventType, limitOrDefault(limit))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list episodes by event type", goerr.V("event_type", eventType))
	}
	defer rows.Close()

	return collectEpisodic(rows)
}

// ListByDateRange returns episodes whose episode_date falls in [from, to)
func (r *Episodic) ListByDateRange(ctx context.Context, userID string, from, to time.Time, limit int) ([]*model.EpisodicMemory, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+episodicColumns+` FROM episodic_memories
		 WHERE user_id = ? AND episode_date >= ? AND episode_date < ?
		 ORDER BY episode_date DESC LIMIT ?`,
		userID, formatTime(from), formatTime(to), limitOrDefault(limit))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list episodes by date range")
	}
	defer rows.Close()

	return collectEpisodic(rows)
}

func collectEpisodic(rows *sql.Rows) ([]*model.EpisodicMemory, error) {
	var out []*model.EpisodicMemory
	for rows.Next() {
		m, err := scanEpisodic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// scanEpisodic is the single row-to-record boundary for the episodic kind
func scanEpisodic(row rowScanner) (*model.EpisodicMemory, error) {
	var m model.EpisodicMemory
	var id, tags, contextJSON, createdAt, updatedAt, participants, episodeDate string

	if err := row.Scan(&id, &m.UserID, &m.Content, &m.ImportanceScore, &m.Confidence, &m.AccessCount,
		&tags, &contextJSON, &createdAt, &updatedAt,
		&m.EventType, &m.Location, &participants, &m.EmotionalValence, &m.Vividness,
		&episodeDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to scan episodic row")
	}

	m.ID = model.MemoryID(id)
	m.MemoryType = model.MemoryTypeEpisodic
	if err := decodeJSON(tags, &m.Tags); err != nil {
		return nil, err
	}
	if err := decodeJSON(contextJSON, &m.Context); err != nil {
		return nil, err
	}
	if err := decodeJSON(participants, &m.Participants); err != nil {
		return nil, err
	}

	var err error
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if m.EpisodeDate, err = parseTime(episodeDate); err != nil {
		return nil, err
	}

	return &m, nil
}
