package model

import "time"

// CreateMemoryRequest carries the fields for creating a memory of any
// kind. MemoryType selects the repository; kind-specific fields are
// ignored by other kinds.
type CreateMemoryRequest struct {
	UserID          string
	MemoryType      MemoryType
	Content         string
	ImportanceScore *float64
	Confidence      *float64
	Tags            []string
	Context         map[string]any

	// Factual
	Subject            string
	Predicate          string
	ObjectValue        string
	FactType           string
	VerificationStatus string

	// Episodic
	EventType        string
	Location         string
	Participants     []string
	EmotionalValence float64
	Vividness        float64
	EpisodeDate      *time.Time

	// Procedural
	SkillType       string
	Steps           []ProcedureStep
	Prerequisites   []string
	DifficultyLevel DifficultyLevel
	SuccessRate     float64

	// Semantic
	ConceptType      string
	Definition       string
	Properties       map[string]any
	AbstractionLevel AbstractionLevel
	RelatedConcepts  []string

	// Working
	TaskID      string
	TaskContext map[string]any
	TTLSeconds  *int // nil = default TTL; explicit 0 = expires immediately
	Priority    int

	// Session
	SessionID         string
	ConversationState map[string]any
	SessionType       string
}

// UpdateMemoryRequest is a partial update: nil fields are left as-is.
type UpdateMemoryRequest struct {
	Content         *string
	ImportanceScore *float64
	Confidence      *float64
	Tags            []string
	Context         map[string]any
	Status          *string // working memory only
}

// Empty reports whether the request carries no changes
func (r *UpdateMemoryRequest) Empty() bool {
	return r.Content == nil && r.ImportanceScore == nil && r.Confidence == nil &&
		r.Tags == nil && r.Context == nil && r.Status == nil
}

// ListParams selects memories for listing. A nil MemoryType fans out
// across all kinds.
type ListParams struct {
	UserID     string
	MemoryType *MemoryType
	Limit      int
	Offset     int
}

// OperationResult reports the outcome of an extraction-backed store
// operation. Success is false only when extraction itself failed or no
// valid candidate was produced.
type OperationResult struct {
	Success   bool
	Count     int
	MemoryIDs []MemoryID
	Message   string
}

// MemoryStatistics aggregates per-kind counts for one user
type MemoryStatistics struct {
	TotalMemories int
	ByType        map[MemoryType]int
}
