package memory

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"

	"github.com/framekit/memoria/pkg/adapter"
	"github.com/framekit/memoria/pkg/eventbus"
	"github.com/framekit/memoria/pkg/model"
	"github.com/framekit/memoria/pkg/repository"
	"github.com/framekit/memoria/pkg/service/extract"
	"github.com/framekit/memoria/pkg/utils/logging"
)

const eventSource = "memory-service"

// Orchestrator is the single entry point across the six memory kinds.
// It holds a fixed dispatch table built at construction and is
// stateless otherwise, so it is safe to share across callers.
type Orchestrator struct {
	handlers   map[model.MemoryType]typeHandler
	extractors map[model.MemoryType]extract.Extractor
	working    *repository.Working
	sessions   *repository.Session
	vectors    adapter.VectorStore
	bus        eventbus.Bus
}

// Deps carries the already-constructed collaborators. Bus may be nil;
// the orchestrator then skips event publication.
type Deps struct {
	Factual    *repository.Factual
	Episodic   *repository.Episodic
	Procedural *repository.Procedural
	Semantic   *repository.Semantic
	Working    *repository.Working
	Session    *repository.Session

	FactualExtractor    extract.Extractor
	EpisodicExtractor   extract.Extractor
	ProceduralExtractor extract.Extractor
	SemanticExtractor   extract.Extractor

	Vectors adapter.VectorStore
	Bus     eventbus.Bus
}

// New builds the orchestrator with its dispatch table. The table is
// never mutated afterwards.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		handlers: map[model.MemoryType]typeHandler{
			model.MemoryTypeFactual:    &factualHandler{repo: deps.Factual},
			model.MemoryTypeEpisodic:   &episodicHandler{repo: deps.Episodic},
			model.MemoryTypeProcedural: &proceduralHandler{repo: deps.Procedural},
			model.MemoryTypeSemantic:   &semanticHandler{repo: deps.Semantic},
			model.MemoryTypeWorking:    &workingHandler{repo: deps.Working},
			model.MemoryTypeSession:    &sessionHandler{repo: deps.Session},
		},
		extractors: map[model.MemoryType]extract.Extractor{
			model.MemoryTypeFactual:    deps.FactualExtractor,
			model.MemoryTypeEpisodic:   deps.EpisodicExtractor,
			model.MemoryTypeProcedural: deps.ProceduralExtractor,
			model.MemoryTypeSemantic:   deps.SemanticExtractor,
		},
		working:  deps.Working,
		sessions: deps.Session,
		vectors:  deps.Vectors,
		bus:      deps.Bus,
	}
}

func (o *Orchestrator) handler(t model.MemoryType) (typeHandler, error) {
	h, ok := o.handlers[t]
	if !ok {
		return nil, goerr.Wrap(model.ErrInvalidMemoryType, "no handler for memory type", goerr.V("type", t))
	}
	return h, nil
}

// publish emits a best-effort event; failures are logged, never
// propagated.
func (o *Orchestrator) publish(ctx context.Context, eventType string, data map[string]any) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, eventType, eventSource, data); err != nil {
		logging.From(ctx).Warn("failed to publish event", "error", err, "event_type", eventType)
	}
}

// validateCreate rejects requests that would persist an invalid row:
// empty content, or caller-supplied scores outside [0, 1].
func validateCreate(req *model.CreateMemoryRequest) error {
	if req.Content == "" {
		return goerr.New("memory content is required", goerr.V("memory_type", req.MemoryType))
	}
	if req.ImportanceScore != nil && (*req.ImportanceScore < 0 || *req.ImportanceScore > 1) {
		return goerr.New("importance_score must be within [0, 1]",
			goerr.V("importance_score", *req.ImportanceScore))
	}
	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 1) {
		return goerr.New("confidence must be within [0, 1]",
			goerr.V("confidence", *req.Confidence))
	}
	return nil
}

// CreateMemory dispatches to the kind's repository, applying
// kind-specific injection (session sequence numbers, working-memory
// expiry). Emits memory.created on success.
func (o *Orchestrator) CreateMemory(ctx context.Context, req *model.CreateMemoryRequest) (model.Memory, error) {
	h, err := o.handler(req.MemoryType)
	if err != nil {
		return nil, err
	}
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	mem, err := h.create(ctx, req)
	if err != nil {
		return nil, err
	}

	base := mem.Base()
	o.publish(ctx, "memory.created", map[string]any{
		"memory_id":   string(base.ID),
		"memory_type": string(base.MemoryType),
		"user_id":     base.UserID,
	})

	return mem, nil
}

// GetMemory returns the memory, or nil when no row matches. An empty
// userID skips the owner scope and the access side effect. When userID
// is supplied and the record is found, its access count is incremented
// and the returned snapshot reflects the new count.
func (o *Orchestrator) GetMemory(ctx context.Context, id model.MemoryID, t model.MemoryType, userID string) (model.Memory, error) {
	h, err := o.handler(t)
	if err != nil {
		return nil, err
	}

	mem, err := h.get(ctx, id, userID)
	if err != nil || mem == nil {
		return nil, err
	}

	if userID != "" {
		if err := h.trackAccess(ctx, id, userID); err != nil {
			logging.From(ctx).Warn("failed to track memory access", "error", err, "memory_id", id)
		} else {
			mem.Base().AccessCount++
		}
	}

	return mem, nil
}

// ListMemories lists one kind, or fans out across all six when no kind
// is given. The fan-out applies offset/limit per repository before the
// global sort, so cross-kind pagination is approximate.
func (o *Orchestrator) ListMemories(ctx context.Context, params *model.ListParams) ([]model.Memory, error) {
	if params.MemoryType != nil {
		h, err := o.handler(*params.MemoryType)
		if err != nil {
			return nil, err
		}
		return h.list(ctx, params.UserID, params.Limit, params.Offset)
	}

	var merged []model.Memory
	for _, t := range model.AllMemoryTypes {
		ms, err := o.handlers[t].list(ctx, params.UserID, params.Limit, params.Offset)
		if err != nil {
			return nil, err
		}
		merged = append(merged, ms...)
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Base().CreatedAt.After(merged[j].Base().CreatedAt)
	})

	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// UpdateMemory applies a partial update to (id, userID). A request
// with no fields set changes nothing but still fails with NotFound
// when the row does not exist.
func (o *Orchestrator) UpdateMemory(ctx context.Context, id model.MemoryID, t model.MemoryType, userID string, req *model.UpdateMemoryRequest) error {
	h, err := o.handler(t)
	if err != nil {
		return err
	}
	if req.Empty() {
		mem, err := h.get(ctx, id, userID)
		if err != nil {
			return err
		}
		if mem == nil {
			return goerr.Wrap(model.ErrNotFound, "no row matched",
				goerr.V("memory_id", id), goerr.V("user_id", userID))
		}
		return nil
	}
	return h.update(ctx, id, userID, req)
}

// DeleteMemory removes (id, userID). Session memories are soft
// deleted; every other kind is hard deleted.
func (o *Orchestrator) DeleteMemory(ctx context.Context, id model.MemoryID, t model.MemoryType, userID string) error {
	h, err := o.handler(t)
	if err != nil {
		return err
	}
	return h.delete(ctx, id, userID)
}

// StoreFactualMemory runs factual extraction over dialog text
func (o *Orchestrator) StoreFactualMemory(ctx context.Context, userID, dialog string, importance float64) (*model.OperationResult, error) {
	return o.storeExtracted(ctx, model.MemoryTypeFactual, userID, dialog, importance)
}

// StoreEpisodicMemory runs episodic extraction over dialog text
func (o *Orchestrator) StoreEpisodicMemory(ctx context.Context, userID, dialog string, importance float64) (*model.OperationResult, error) {
	return o.storeExtracted(ctx, model.MemoryTypeEpisodic, userID, dialog, importance)
}

// StoreProceduralMemory runs procedural extraction over dialog text
func (o *Orchestrator) StoreProceduralMemory(ctx context.Context, userID, dialog string, importance float64) (*model.OperationResult, error) {
	return o.storeExtracted(ctx, model.MemoryTypeProcedural, userID, dialog, importance)
}

// StoreSemanticMemory runs semantic extraction over dialog text
func (o *Orchestrator) StoreSemanticMemory(ctx context.Context, userID, dialog string, importance float64) (*model.OperationResult, error) {
	return o.storeExtracted(ctx, model.MemoryTypeSemantic, userID, dialog, importance)
}

func (o *Orchestrator) storeExtracted(ctx context.Context, t model.MemoryType, userID, dialog string, importance float64) (*model.OperationResult, error) {
	ex, ok := o.extractors[t]
	if !ok || ex == nil {
		return nil, goerr.Wrap(model.ErrInvalidMemoryType, "no extraction service for memory type", goerr.V("type", t))
	}

	result, err := ex.Extract(ctx, userID, dialog, importance)
	if err != nil {
		return &model.OperationResult{Success: false, Message: err.Error()}, err
	}

	if result.Success {
		o.publish(ctx, "memory."+string(t)+".stored", map[string]any{
			"user_id": userID,
			"count":   result.Count,
		})
	}

	return result, nil
}

// SearchMemories runs a semantic similarity search within one kind.
// Only the four extraction-backed kinds carry vector collections.
func (o *Orchestrator) SearchMemories(ctx context.Context, userID string, t model.MemoryType, query string, limit int) ([]model.Memory, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	ex, ok := o.extractors[t]
	if !ok || ex == nil {
		return nil, goerr.New("semantic search is not supported for memory type", goerr.V("type", t))
	}
	return ex.Search(ctx, userID, query, limit)
}

// GetMemoryStatistics counts every kind for the user
func (o *Orchestrator) GetMemoryStatistics(ctx context.Context, userID string) (*model.MemoryStatistics, error) {
	stats := &model.MemoryStatistics{
		ByType: make(map[model.MemoryType]int, len(model.AllMemoryTypes)),
	}

	for _, t := range model.AllMemoryTypes {
		n, err := o.handlers[t].count(ctx, userID)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to count memories", goerr.V("type", t))
		}
		stats.ByType[t] = n
		stats.TotalMemories += n
	}

	return stats, nil
}

// GetActiveWorkingMemories returns unexpired working memories
func (o *Orchestrator) GetActiveWorkingMemories(ctx context.Context, userID string) ([]*model.WorkingMemory, error) {
	return o.working.GetActive(ctx, userID)
}

// CleanupExpiredWorkingMemories sweeps expired working memories for
// one user, or globally when userID is empty. Returns the number of
// rows removed.
func (o *Orchestrator) CleanupExpiredWorkingMemories(ctx context.Context, userID string) (int, error) {
	n, err := o.working.CleanupExpired(ctx, userID)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		o.publish(ctx, "memory.working.expired", map[string]any{
			"user_id": userID,
			"count":   n,
		})
	}
	return n, nil
}

// EndSession deactivates a session's memories (soft delete). Returns
// the number of rows deactivated.
func (o *Orchestrator) EndSession(ctx context.Context, userID, sessionID string) (int, error) {
	n, err := o.sessions.Deactivate(ctx, userID, sessionID)
	if err != nil {
		return 0, err
	}

	o.publish(ctx, "memory.session.deactivated", map[string]any{
		"user_id":    userID,
		"session_id": sessionID,
		"count":      n,
	})
	return n, nil
}

// ReconcileVectors reports record ids that lack a vector entry, per
// kind, for the extraction-backed kinds. The dual write is best-effort
// on the vector side, so gaps are expected to be possible; this makes
// them observable.
func (o *Orchestrator) ReconcileVectors(ctx context.Context) (map[model.MemoryType][]model.MemoryID, error) {
	if o.vectors == nil {
		return nil, goerr.New("no vector store configured")
	}

	missing := make(map[model.MemoryType][]model.MemoryID)
	for t := range o.extractors {
		collection := extract.CollectionName(t)
		if err := o.vectors.EnsureCollection(ctx, collection, 0); err != nil {
			return nil, err
		}

		ids, err := o.handlers[t].listIDs(ctx)
		if err != nil {
			return nil, err
		}

		for _, id := range ids {
			ok, err := o.vectors.Has(ctx, collection, string(id))
			if err != nil {
				return nil, err
			}
			if !ok {
				missing[t] = append(missing[t], id)
			}
		}
	}

	return missing, nil
}
