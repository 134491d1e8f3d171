package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidMemoryType = goerr.New("invalid memory type")
	ErrNotFound          = goerr.New("memory not found")
	ErrExtractionFailed  = goerr.New("memory extraction failed")
	ErrDuplicateFact     = goerr.New("duplicate fact")
	ErrStoreWriteFailed  = goerr.New("store write failed")
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

type MemoryType string

const (
	MemoryTypeFactual    MemoryType = "factual"
	MemoryTypeProcedural MemoryType = "procedural"
	MemoryTypeEpisodic   MemoryType = "episodic"
	MemoryTypeSemantic   MemoryType = "semantic"
	MemoryTypeWorking    MemoryType = "working"
	MemoryTypeSession    MemoryType = "session"
)

// AllMemoryTypes lists every memory type in a stable order.
var AllMemoryTypes = []MemoryType{
	MemoryTypeFactual,
	MemoryTypeProcedural,
	MemoryTypeEpisodic,
	MemoryTypeSemantic,
	MemoryTypeWorking,
	MemoryTypeSession,
}

// Validate checks if the memory type is one of the six known kinds
func (t MemoryType) Validate() error {
	switch t {
	case MemoryTypeFactual, MemoryTypeProcedural, MemoryTypeEpisodic,
		MemoryTypeSemantic, MemoryTypeWorking, MemoryTypeSession:
		return nil
	default:
		return goerr.Wrap(ErrInvalidMemoryType, "unknown memory type", goerr.V("type", t))
	}
}

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// Validate checks if the difficulty level is valid
func (d DifficultyLevel) Validate() error {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return nil
	default:
		return goerr.New("invalid difficulty level", goerr.V("level", d))
	}
}

type AbstractionLevel string

const (
	AbstractionLow    AbstractionLevel = "low"
	AbstractionMedium AbstractionLevel = "medium"
	AbstractionHigh   AbstractionLevel = "high"
)

// Validate checks if the abstraction level is valid
func (a AbstractionLevel) Validate() error {
	switch a {
	case AbstractionLow, AbstractionMedium, AbstractionHigh:
		return nil
	default:
		return goerr.New("invalid abstraction level", goerr.V("level", a))
	}
}

// MemoryRecord is the common base embedded by every memory kind.
type MemoryRecord struct {
	ID              MemoryID
	UserID          string
	MemoryType      MemoryType
	Content         string
	ImportanceScore float64
	Confidence      float64
	AccessCount     int
	Tags            []string
	Context         map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Memory is implemented by all six memory kinds. Base exposes the
// shared fields so the orchestrator can treat kinds uniformly.
type Memory interface {
	Base() *MemoryRecord
}

// newRecord stamps defaults shared by all kinds: ImportanceScore 0.5,
// Confidence 0.8, zero access count, creation timestamps.
func newRecord(userID string, memoryType MemoryType, content string) MemoryRecord {
	now := time.Now().UTC()
	return MemoryRecord{
		ID:              NewMemoryID(),
		UserID:          userID,
		MemoryType:      memoryType,
		Content:         content,
		ImportanceScore: 0.5,
		Confidence:      0.8,
		Tags:            []string{},
		Context:         map[string]any{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

type FactualMemory struct {
	MemoryRecord

	Subject            string
	Predicate          string
	ObjectValue        string
	FactType           string
	VerificationStatus string
}

func (m *FactualMemory) Base() *MemoryRecord { return &m.MemoryRecord }

// NewFactualMemory creates a factual memory with shared defaults applied
func NewFactualMemory(userID, content string) *FactualMemory {
	return &FactualMemory{
		MemoryRecord:       newRecord(userID, MemoryTypeFactual, content),
		VerificationStatus: "unverified",
	}
}

type EpisodicMemory struct {
	MemoryRecord

	EventType        string
	Location         string
	Participants     []string
	EmotionalValence float64 // [-1, 1]
	Vividness        float64 // [0, 1]
	EpisodeDate      time.Time
}

func (m *EpisodicMemory) Base() *MemoryRecord { return &m.MemoryRecord }

// NewEpisodicMemory creates an episodic memory with shared defaults applied
func NewEpisodicMemory(userID, content string) *EpisodicMemory {
	return &EpisodicMemory{
		MemoryRecord: newRecord(userID, MemoryTypeEpisodic, content),
		Participants: []string{},
		EpisodeDate:  time.Now().UTC(),
	}
}

// ProcedureStep is one ordered step of a procedural memory
type ProcedureStep struct {
	Order       int    `json:"order"`
	Description string `json:"description"`
}

type ProceduralMemory struct {
	MemoryRecord

	SkillType       string
	Steps           []ProcedureStep
	Prerequisites   []string
	DifficultyLevel DifficultyLevel
	SuccessRate     float64 // [0, 1]
}

func (m *ProceduralMemory) Base() *MemoryRecord { return &m.MemoryRecord }

// NewProceduralMemory creates a procedural memory with shared defaults applied
func NewProceduralMemory(userID, content string) *ProceduralMemory {
	return &ProceduralMemory{
		MemoryRecord:    newRecord(userID, MemoryTypeProcedural, content),
		Steps:           []ProcedureStep{},
		Prerequisites:   []string{},
		DifficultyLevel: DifficultyMedium,
	}
}

type SemanticMemory struct {
	MemoryRecord

	ConceptType      string
	Definition       string
	Properties       map[string]any
	AbstractionLevel AbstractionLevel
	RelatedConcepts  []string
}

func (m *SemanticMemory) Base() *MemoryRecord { return &m.MemoryRecord }

// NewSemanticMemory creates a semantic memory with shared defaults applied
func NewSemanticMemory(userID, content string) *SemanticMemory {
	return &SemanticMemory{
		MemoryRecord:     newRecord(userID, MemoryTypeSemantic, content),
		Properties:       map[string]any{},
		AbstractionLevel: AbstractionMedium,
		RelatedConcepts:  []string{},
	}
}

// DefaultWorkingMemoryTTL is applied when a working memory is created
// without an explicit ttl_seconds.
const DefaultWorkingMemoryTTL = 3600 * time.Second

type WorkingMemory struct {
	MemoryRecord

	TaskID      string
	TaskContext map[string]any
	TTLSeconds  int
	ExpiresAt   time.Time
	Priority    int
	Status      string
}

func (m *WorkingMemory) Base() *MemoryRecord { return &m.MemoryRecord }

// Expired reports whether the memory has passed its expiry time
func (m *WorkingMemory) Expired(now time.Time) bool {
	return !m.ExpiresAt.After(now)
}

// NewWorkingMemory creates a working memory whose expiry is derived
// from ttlSeconds. A nil ttl falls back to the default of one hour; an
// explicit zero yields a memory that is already expired.
func NewWorkingMemory(userID, content string, ttlSeconds *int) *WorkingMemory {
	rec := newRecord(userID, MemoryTypeWorking, content)
	seconds := int(DefaultWorkingMemoryTTL / time.Second)
	if ttlSeconds != nil {
		seconds = *ttlSeconds
	}
	return &WorkingMemory{
		MemoryRecord: rec,
		TaskContext:  map[string]any{},
		TTLSeconds:   seconds,
		ExpiresAt:    rec.CreatedAt.Add(time.Duration(seconds) * time.Second),
		Status:       "active",
	}
}

type SessionMemory struct {
	MemoryRecord

	SessionID           string
	InteractionSequence int
	ConversationState   map[string]any
	SessionType         string
	Active              bool
}

func (m *SessionMemory) Base() *MemoryRecord { return &m.MemoryRecord }

// NewSessionMemory creates a session memory bound to sessionID
func NewSessionMemory(userID, sessionID, content string) *SessionMemory {
	return &SessionMemory{
		MemoryRecord:      newRecord(userID, MemoryTypeSession, content),
		SessionID:         sessionID,
		ConversationState: map[string]any{},
		SessionType:       "conversation",
		Active:            true,
	}
}
