package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/framekit/memoria/pkg/model"
	"github.com/framekit/memoria/pkg/repository"
)

// factualHandler adapts the factual repository to the uniform contract

type factualHandler struct {
	repo *repository.Factual
}

func (h *factualHandler) create(ctx context.Context, req *model.CreateMemoryRequest) (model.Memory, error) {
	if req.Subject != "" && req.Predicate != "" {
		existing, err := h.repo.FindBySubjectPredicate(ctx, req.UserID, req.Subject, req.Predicate)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, goerr.Wrap(model.ErrDuplicateFact, "fact already stored",
				goerr.V("subject", req.Subject), goerr.V("predicate", req.Predicate),
				goerr.V("existing_id", existing.ID))
		}
	}

	m := model.NewFactualMemory(req.UserID, req.Content)
	applyCommon(req, &m.MemoryRecord)
	m.Subject = req.Subject
	m.Predicate = req.Predicate
	m.ObjectValue = req.ObjectValue
	m.FactType = req.FactType
	if req.VerificationStatus != "" {
		m.VerificationStatus = req.VerificationStatus
	}

	if err := h.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (h *factualHandler) get(ctx context.Context, id model.MemoryID, userID string) (model.Memory, error) {
	m, err := h.repo.Get(ctx, id, userID)
	if err != nil || m == nil {
		return nil, err
	}
	return m, nil
}

func (h *factualHandler) trackAccess(ctx context.Context, id model.MemoryID, userID string) error {
	return h.repo.IncrementAccess(ctx, id, userID)
}

func (h *factualHandler) list(ctx context.Context, userID string, limit, offset int) ([]model.Memory, error) {
	ms, err := h.repo.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return asMemories(ms), nil
}

func (h *factualHandler) update(ctx context.Context, id model.MemoryID, userID string, req *model.UpdateMemoryRequest) error {
	fields, err := commonUpdateFields(req)
	if err != nil {
		return err
	}
	return h.repo.Update(ctx, id, userID, fields)
}

func (h *factualHandler) delete(ctx context.Context, id model.MemoryID, userID string) error {
	return h.repo.Delete(ctx, id, userID)
}

func (h *factualHandler) count(ctx context.Context, userID string) (int, error) {
	return h.repo.Count(ctx, userID)
}

func (h *factualHandler) listIDs(ctx context.Context) ([]model.MemoryID, error) {
	return h.repo.ListIDs(ctx)
}

// episodicHandler adapts the episodic repository to the uniform contract

type episodicHandler struct {
	repo *repository.Episodic
}

func (h *episodicHandler) create(ctx context.Context, req *model.CreateMemoryRequest) (model.Memory, error) {
	m := model.NewEpisodicMemory(req.UserID, req.Content)
	applyCommon(req, &m.MemoryRecord)
	m.EventType = req.EventType
	m.Location = req.Location
	if req.Participants != nil {
		m.Participants = req.Participants
	}
	m.EmotionalValence = req.EmotionalValence
	m.Vividness = req.Vividness
	if req.EpisodeDate != nil {
		m.EpisodeDate = *req.EpisodeDate
	}

	if err := h.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (h *episodicHandler) get(ctx context.Context, id model.MemoryID, userID string) (model.Memory, error) {
	m, err := h.repo.Get(ctx, id, userID)
	if err != nil || m == nil {
		return nil, err
	}
	return m, nil
}

func (h *episodicHandler) trackAccess(ctx context.Context, id model.MemoryID, userID string) error {
	return h.repo.IncrementAccess(ctx, id, userID)
}

func (h *episodicHandler) list(ctx context.Context, userID string, limit, offset int) ([]model.Memory, error) {
	ms, err := h.repo.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return asMemories(ms), nil
}

func (h *episodicHandler) update(ctx context.Context, id model.MemoryID, userID string, req *model.UpdateMemoryRequest) error {
	fields, err := commonUpdateFields(req)
	if err != nil {
		return err
	}
	return h.repo.Update(ctx, id, userID, fields)
}

func (h *episodicHandler) delete(ctx context.Context, id model.MemoryID, userID string) error {
	return h.repo.Delete(ctx, id, userID)
}

func (h *episodicHandler) count(ctx context.Context, userID string) (int, error) {
	return h.repo.Count(ctx, userID)
}

func (h *episodicHandler) listIDs(ctx context.Context) ([]model.MemoryID, error) {
	return h.repo.ListIDs(ctx)
}

// proceduralHandler adapts the procedural repository to the uniform contract

type proceduralHandler struct {
	repo *repository.Procedural
}

func (h *proceduralHandler) create(ctx context.Context, req *model.CreateMemoryRequest) (model.Memory, error) {
	m := model.NewProceduralMemory(req.UserID, req.Content)
	applyCommon(req, &m.MemoryRecord)
	m.SkillType = req.SkillType
	if req.Steps != nil {
		m.Steps = req.Steps
	}
	if req.Prerequisites != nil {
		m.Prerequisites = req.Prerequisites
	}
	if req.DifficultyLevel != "" {
		if err := req.DifficultyLevel.Validate(); err != nil {
			return nil, err
		}
		m.DifficultyLevel = req.DifficultyLevel
	}
	m.SuccessRate = req.SuccessRate

	if err := h.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (h *proceduralHandler) get(ctx context.Context, id model.MemoryID, userID string) (model.Memory, error) {
	m, err := h.repo.Get(ctx, id, userID)
	if err != nil || m == nil {
		return nil, err
	}
	return m, nil
}

func (h *proceduralHandler) trackAccess(ctx context.Context, id model.MemoryID, userID string) error {
	return h.repo.IncrementAccess(ctx, id, userID)
}

func (h *proceduralHandler) list(ctx context.Context, userID string, limit, offset int) ([]model.Memory, error) {
	ms, err := h.repo.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return asMemories(ms), nil
}

func (h *proceduralHandler) update(ctx context.Context, id model.MemoryID, userID string, req *model.UpdateMemoryRequest) error {
	fields, err := commonUpdateFields(req)
	if err != nil {
		return err
	}
	return h.repo.Update(ctx, id, userID, fields)
}

func (h *proceduralHandler) delete(ctx context.Context, id model.MemoryID, userID string) error {
	return h.repo.Delete(ctx, id, userID)
}

func (h *proceduralHandler) count(ctx context.Context, userID string) (int, error) {
	return h.repo.Count(ctx, userID)
}

func (h *proceduralHandler) listIDs(ctx context.Context) ([]model.MemoryID, error) {
	return h.repo.ListIDs(ctx)
}

// semanticHandler adapts the semantic repository to the uniform contract

type semanticHandler struct {
	repo *repository.Semantic
}

func (h *semanticHandler) create(ctx context.Context, req *model.CreateMemoryRequest) (model.Memory, error) {
	m := model.NewSemanticMemory(req.UserID, req.Content)
	applyCommon(req, &m.MemoryRecord)
	m.ConceptType = req.ConceptType
	m.Definition = req.Definition
	if req.Properties != nil {
		m.Properties = req.Properties
	}
	if req.AbstractionLevel != "" {
		if err := req.AbstractionLevel.Validate(); err != nil {
			return nil, err
		}
		m.AbstractionLevel = req.AbstractionLevel
	}
	if req.RelatedConcepts != nil {
		m.RelatedConcepts = req.RelatedConcepts
	}

	if err := h.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (h *semanticHandler) get(ctx context.Context, id model.MemoryID, userID string) (model.Memory, error) {
	m, err := h.repo.Get(ctx, id, userID)
	if err != nil || m == nil {
		return nil, err
	}
	return m, nil
}

func (h *semanticHandler) trackAccess(ctx context.Context, id model.MemoryID, userID string) error {
	return h.repo.IncrementAccess(ctx, id, userID)
}

func (h *semanticHandler) list(ctx context.Context, userID string, limit, offset int) ([]model.Memory, error) {
	ms, err := h.repo.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return asMemories(ms), nil
}

func (h *semanticHandler) update(ctx context.Context, id model.MemoryID, userID string, req *model.UpdateMemoryRequest) error {
	fields, err := commonUpdateFields(req)
	if err != nil {
		return err
	}
	return h.repo.Update(ctx, id, userID, fields)
}

func (h *semanticHandler) delete(ctx context.Context, id model.MemoryID, userID string) error {
	return h.repo.Delete(ctx, id, userID)
}

func (h *semanticHandler) count(ctx context.Context, userID string) (int, error) {
	return h.repo.Count(ctx, userID)
}

func (h *semanticHandler) listIDs(ctx context.Context) ([]model.MemoryID, error) {
	return h.repo.ListIDs(ctx)
}

// workingHandler adapts the working repository to the uniform contract.
// Working memories are immutable after creation except for status.

type workingHandler struct {
	repo *repository.Working
}

func (h *workingHandler) create(ctx context.Context, req *model.CreateMemoryRequest) (model.Memory, error) {
	m := model.NewWorkingMemory(req.UserID, req.Content, req.TTLSeconds)
	applyCommon(req, &m.MemoryRecord)
	m.TaskID = req.TaskID
	if req.TaskContext != nil {
		m.TaskContext = req.TaskContext
	}
	m.Priority = req.Priority

	if err := h.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (h *workingHandler) get(ctx context.Context, id model.MemoryID, userID string) (model.Memory, error) {
	m, err := h.repo.Get(ctx, id, userID)
	if err != nil || m == nil {
		return nil, err
	}
	return m, nil
}

func (h *workingHandler) trackAccess(ctx context.Context, id model.MemoryID, userID string) error {
	return h.repo.IncrementAccess(ctx, id, userID)
}

func (h *workingHandler) list(ctx context.Context, userID string, limit, offset int) ([]model.Memory, error) {
	ms, err := h.repo.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return asMemories(ms), nil
}

func (h *workingHandler) update(ctx context.Context, id model.MemoryID, userID string, req *model.UpdateMemoryRequest) error {
	if req.Content != nil || req.ImportanceScore != nil || req.Confidence != nil ||
		req.Tags != nil || req.Context != nil {
		return goerr.New("working memories only allow status updates", goerr.V("id", id))
	}
	if req.Status == nil {
		return nil
	}
	return h.repo.UpdateStatus(ctx, id, userID, *req.Status)
}

func (h *workingHandler) delete(ctx context.Context, id model.MemoryID, userID string) error {
	return h.repo.Delete(ctx, id, userID)
}

func (h *workingHandler) count(ctx context.Context, userID string) (int, error) {
	return h.repo.Count(ctx, userID)
}

func (h *workingHandler) listIDs(ctx context.Context) ([]model.MemoryID, error) {
	return h.repo.ListIDs(ctx)
}

// sessionHandler adapts the session repository to the uniform contract.
// Session memories are soft deleted and carry a monotonic sequence.

type sessionHandler struct {
	repo *repository.Session
}

func (h *sessionHandler) create(ctx context.Context, req *model.CreateMemoryRequest) (model.Memory, error) {
	if req.SessionID == "" {
		return nil, goerr.New("session memory requires session_id")
	}

	m := model.NewSessionMemory(req.UserID, req.SessionID, req.Content)
	applyCommon(req, &m.MemoryRecord)
	if req.ConversationState != nil {
		m.ConversationState = req.ConversationState
	}
	if req.SessionType != "" {
		m.SessionType = req.SessionType
	}

	seq, err := h.repo.NextSequence(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	m.InteractionSequence = seq

	if err := h.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (h *sessionHandler) get(ctx context.Context, id model.MemoryID, userID string) (model.Memory, error) {
	m, err := h.repo.Get(ctx, id, userID)
	if err != nil || m == nil {
		return nil, err
	}
	return m, nil
}

func (h *sessionHandler) trackAccess(ctx context.Context, id model.MemoryID, userID string) error {
	return h.repo.IncrementAccess(ctx, id, userID)
}

func (h *sessionHandler) list(ctx context.Context, userID string, limit, offset int) ([]model.Memory, error) {
	ms, err := h.repo.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return asMemories(ms), nil
}

func (h *sessionHandler) update(ctx context.Context, id model.MemoryID, userID string, req *model.UpdateMemoryRequest) error {
	fields, err := commonUpdateFields(req)
	if err != nil {
		return err
	}
	return h.repo.Update(ctx, id, userID, fields)
}

// delete soft-deletes: session rows are deactivated, not removed
func (h *sessionHandler) delete(ctx context.Context, id model.MemoryID, userID string) error {
	return h.repo.SoftDelete(ctx, id, userID)
}

func (h *sessionHandler) count(ctx context.Context, userID string) (int, error) {
	return h.repo.Count(ctx, userID)
}

func (h *sessionHandler) listIDs(ctx context.Context) ([]model.MemoryID, error) {
	return h.repo.ListIDs(ctx)
}
