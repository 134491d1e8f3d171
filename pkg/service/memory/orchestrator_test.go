package memory_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/framekit/memoria/pkg/adapter"
	"github.com/framekit/memoria/pkg/eventbus"
	"github.com/framekit/memoria/pkg/model"
	"github.com/framekit/memoria/pkg/repository"
	"github.com/framekit/memoria/pkg/service/memory"
)

// mockExtractor is a mock implementation of extract.Extractor
type mockExtractor struct {
	extractFunc func(ctx context.Context, userID, dialog string, importance float64) (*model.OperationResult, error)
	searchFunc  func(ctx context.Context, userID, query string, limit int) ([]model.Memory, error)
}

func (m *mockExtractor) Extract(ctx context.Context, userID, dialog string, importance float64) (*model.OperationResult, error) {
	if m.extractFunc != nil {
		return m.extractFunc(ctx, userID, dialog, importance)
	}
	return nil, errors.New("not implemented")
}

func (m *mockExtractor) Search(ctx context.Context, userID, query string, limit int) ([]model.Memory, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, userID, query, limit)
	}
	return nil, errors.New("not implemented")
}

type testEnv struct {
	orch    *memory.Orchestrator
	db      *repository.DB
	vectors *adapter.ChromemStore
	bus     *eventbus.InProc
	deps    memory.Deps
}

func newTestEnv(t *testing.T, mutate func(*memory.Deps)) *testEnv {
	t.Helper()

	db, err := repository.Open(filepath.Join(t.TempDir(), "memoria.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	vectors := adapter.NewChromem()
	bus := eventbus.NewInProc()

	deps := memory.Deps{
		Factual:    repository.NewFactual(db),
		Episodic:   repository.NewEpisodic(db),
		Procedural: repository.NewProcedural(db),
		Semantic:   repository.NewSemantic(db),
		Working:    repository.NewWorking(db),
		Session:    repository.NewSession(db),
		Vectors:    vectors,
		Bus:        bus,
	}
	if mutate != nil {
		mutate(&deps)
	}

	return &testEnv{
		orch:    memory.New(deps),
		db:      db,
		vectors: vectors,
		bus:     bus,
		deps:    deps,
	}
}

func createReq(t model.MemoryType, userID, content string) *model.CreateMemoryRequest {
	req := &model.CreateMemoryRequest{
		UserID:     userID,
		MemoryType: t,
		Content:    content,
	}
	if t == model.MemoryTypeSession {
		req.SessionID = "sess-1"
	}
	return req
}

func TestCreateDispatchesEachKind(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	for _, kind := range model.AllMemoryTypes {
		mem, err := env.orch.CreateMemory(ctx, createReq(kind, "user-1", "content for "+string(kind)))
		gt.NoError(t, err)
		gt.Equal(t, mem.Base().MemoryType, kind)

		got, err := env.orch.GetMemory(ctx, mem.Base().ID, kind, "user-1")
		gt.NoError(t, err)
		gt.V(t, got).NotNil()
		gt.Equal(t, got.Base().ID, mem.Base().ID)
	}
}

func TestInvalidMemoryTypeRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	bogus := model.MemoryType("bogus")

	_, err := env.orch.CreateMemory(ctx, &model.CreateMemoryRequest{
		UserID: "user-1", MemoryType: bogus, Content: "x",
	})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidMemoryType))

	_, err = env.orch.GetMemory(ctx, model.NewMemoryID(), bogus, "user-1")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidMemoryType))

	err = env.orch.UpdateMemory(ctx, model.NewMemoryID(), bogus, "user-1", &model.UpdateMemoryRequest{})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidMemoryType))

	err = env.orch.DeleteMemory(ctx, model.NewMemoryID(), bogus, "user-1")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidMemoryType))
}

func TestCreateDuplicateFactRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	req := createReq(model.MemoryTypeFactual, "user-1", "user lives in Tokyo")
	req.Subject = "user"
	req.Predicate = "lives_in"
	req.ObjectValue = "Tokyo"

	_, err := env.orch.CreateMemory(ctx, req)
	gt.NoError(t, err)

	dup := createReq(model.MemoryTypeFactual, "user-1", "user lives in Osaka")
	dup.Subject = "user"
	dup.Predicate = "lives_in"
	dup.ObjectValue = "Osaka"

	_, err = env.orch.CreateMemory(ctx, dup)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrDuplicateFact))
}

func TestCreateRejectsInvalidRequest(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	_, err := env.orch.CreateMemory(ctx, createReq(model.MemoryTypeFactual, "user-1", ""))
	gt.Error(t, err)

	tooHigh := 1.5
	req := createReq(model.MemoryTypeFactual, "user-1", "fact")
	req.ImportanceScore = &tooHigh
	_, err = env.orch.CreateMemory(ctx, req)
	gt.Error(t, err)

	negative := -0.1
	req = createReq(model.MemoryTypeFactual, "user-1", "fact")
	req.Confidence = &negative
	_, err = env.orch.CreateMemory(ctx, req)
	gt.Error(t, err)

	// nothing persisted by the rejected requests
	n, err := env.deps.Factual.Count(ctx, "user-1")
	gt.NoError(t, err)
	gt.Equal(t, n, 0)
}

func TestGetTracksAccess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	mem, err := env.orch.CreateMemory(ctx, createReq(model.MemoryTypeFactual, "user-1", "fact"))
	gt.NoError(t, err)

	// each get reports the count including its own access
	first, err := env.orch.GetMemory(ctx, mem.Base().ID, model.MemoryTypeFactual, "user-1")
	gt.NoError(t, err)
	gt.Equal(t, first.Base().AccessCount, 1)

	_, err = env.orch.GetMemory(ctx, mem.Base().ID, model.MemoryTypeFactual, "user-1")
	gt.NoError(t, err)

	got, err := env.orch.GetMemory(ctx, mem.Base().ID, model.MemoryTypeFactual, "user-1")
	gt.NoError(t, err)
	gt.Equal(t, got.Base().AccessCount, 3)
	gt.Equal(t, got.Base().UpdatedAt.Unix(), mem.Base().UpdatedAt.Unix())
}

func TestGetWithoutUserID(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	mem, err := env.orch.CreateMemory(ctx, createReq(model.MemoryTypeFactual, "user-1", "fact"))
	gt.NoError(t, err)

	// no owner scope, no access tracking
	got, err := env.orch.GetMemory(ctx, mem.Base().ID, model.MemoryTypeFactual, "")
	gt.NoError(t, err)
	gt.V(t, got).NotNil()
	gt.Equal(t, got.Base().UserID, "user-1")
	gt.Equal(t, got.Base().AccessCount, 0)

	scoped, err := env.orch.GetMemory(ctx, mem.Base().ID, model.MemoryTypeFactual, "user-1")
	gt.NoError(t, err)
	gt.Equal(t, scoped.Base().AccessCount, 1)
}

func TestGetAbsentReturnsNil(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	got, err := env.orch.GetMemory(ctx, model.NewMemoryID(), model.MemoryTypeEpisodic, "user-1")
	gt.NoError(t, err)
	gt.True(t, got == nil)
}

func TestListFanOutAcrossKinds(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	for _, kind := range []model.MemoryType{
		model.MemoryTypeFactual, model.MemoryTypeEpisodic, model.MemoryTypeWorking,
	} {
		_, err := env.orch.CreateMemory(ctx, createReq(kind, "user-1", string(kind)))
		gt.NoError(t, err)
	}

	all, err := env.orch.ListMemories(ctx, &model.ListParams{UserID: "user-1"})
	gt.NoError(t, err)
	gt.A(t, all).Length(3)

	// newest first across kinds
	gt.Equal(t, all[0].Base().MemoryType, model.MemoryTypeWorking)
	gt.Equal(t, all[2].Base().MemoryType, model.MemoryTypeFactual)

	only := model.MemoryTypeEpisodic
	episodic, err := env.orch.ListMemories(ctx, &model.ListParams{UserID: "user-1", MemoryType: &only})
	gt.NoError(t, err)
	gt.A(t, episodic).Length(1)
	gt.Equal(t, episodic[0].Base().MemoryType, model.MemoryTypeEpisodic)
}

func TestUpdateMemory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	mem, err := env.orch.CreateMemory(ctx, createReq(model.MemoryTypeFactual, "user-1", "old"))
	gt.NoError(t, err)

	// empty request changes nothing but still reports a missing row
	gt.NoError(t, env.orch.UpdateMemory(ctx, mem.Base().ID, model.MemoryTypeFactual, "user-1", &model.UpdateMemoryRequest{}))
	err = env.orch.UpdateMemory(ctx, model.NewMemoryID(), model.MemoryTypeFactual, "user-1", &model.UpdateMemoryRequest{})
	gt.True(t, errors.Is(err, model.ErrNotFound))

	content := "new"
	gt.NoError(t, env.orch.UpdateMemory(ctx, mem.Base().ID, model.MemoryTypeFactual, "user-1",
		&model.UpdateMemoryRequest{Content: &content}))

	got, err := env.orch.GetMemory(ctx, mem.Base().ID, model.MemoryTypeFactual, "user-1")
	gt.NoError(t, err)
	gt.Equal(t, got.Base().Content, "new")
}

func TestWorkingMemoryUpdateRestrictions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	mem, err := env.orch.CreateMemory(ctx, createReq(model.MemoryTypeWorking, "user-1", "task"))
	gt.NoError(t, err)

	content := "rewritten"
	err = env.orch.UpdateMemory(ctx, mem.Base().ID, model.MemoryTypeWorking, "user-1",
		&model.UpdateMemoryRequest{Content: &content})
	gt.Error(t, err)

	status := "completed"
	gt.NoError(t, env.orch.UpdateMemory(ctx, mem.Base().ID, model.MemoryTypeWorking, "user-1",
		&model.UpdateMemoryRequest{Status: &status}))

	got, err := env.deps.Working.Get(ctx, mem.Base().ID, "user-1")
	gt.NoError(t, err)
	gt.Equal(t, got.Status, "completed")
}

func TestDeleteSessionIsSoft(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	mem, err := env.orch.CreateMemory(ctx, createReq(model.MemoryTypeSession, "user-1", "turn"))
	gt.NoError(t, err)

	gt.NoError(t, env.orch.DeleteMemory(ctx, mem.Base().ID, model.MemoryTypeSession, "user-1"))

	got, err := env.deps.Session.Get(ctx, mem.Base().ID, "user-1")
	gt.NoError(t, err)
	gt.V(t, got).NotNil()
	gt.True(t, !got.Active)
}

func TestDeleteFactualIsHard(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	mem, err := env.orch.CreateMemory(ctx, createReq(model.MemoryTypeFactual, "user-1", "fact"))
	gt.NoError(t, err)

	gt.NoError(t, env.orch.DeleteMemory(ctx, mem.Base().ID, model.MemoryTypeFactual, "user-1"))

	got, err := env.orch.GetMemory(ctx, mem.Base().ID, model.MemoryTypeFactual, "user-1")
	gt.NoError(t, err)
	gt.True(t, got == nil)
}

func TestSessionSequenceInjection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	first, err := env.orch.CreateMemory(ctx, createReq(model.MemoryTypeSession, "user-1", "turn 1"))
	gt.NoError(t, err)
	second, err := env.orch.CreateMemory(ctx, createReq(model.MemoryTypeSession, "user-1", "turn 2"))
	gt.NoError(t, err)

	gt.Equal(t, first.(*model.SessionMemory).InteractionSequence, 1)
	gt.Equal(t, second.(*model.SessionMemory).InteractionSequence, 2)
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	counts := map[model.MemoryType]int{
		model.MemoryTypeFactual:  2,
		model.MemoryTypeSemantic: 1,
		model.MemoryTypeWorking:  3,
	}
	for kind, n := range counts {
		for i := 0; i < n; i++ {
			_, err := env.orch.CreateMemory(ctx, createReq(kind, "user-1", "m"))
			gt.NoError(t, err)
		}
	}

	// another user's memories must not leak into the counts
	_, err := env.orch.CreateMemory(ctx, createReq(model.MemoryTypeFactual, "user-2", "m"))
	gt.NoError(t, err)

	stats, err := env.orch.GetMemoryStatistics(ctx, "user-1")
	gt.NoError(t, err)
	gt.Equal(t, stats.TotalMemories, 6)
	gt.Equal(t, stats.ByType[model.MemoryTypeFactual], 2)
	gt.Equal(t, stats.ByType[model.MemoryTypeWorking], 3)
	gt.Equal(t, stats.ByType[model.MemoryTypeEpisodic], 0)
}

func TestStoreExtractedPublishesEvent(t *testing.T) {
	ctx := context.Background()

	var events []string
	env := newTestEnv(t, func(deps *memory.Deps) {
		deps.FactualExtractor = &mockExtractor{
			extractFunc: func(ctx context.Context, userID, dialog string, importance float64) (*model.OperationResult, error) {
				return &model.OperationResult{Success: true, Count: 1, MemoryIDs: []model.MemoryID{"id-1"}}, nil
			},
		}
	})
	env.bus.Subscribe("memory.*", func(ctx context.Context, ev *eventbus.Event) error {
		events = append(events, ev.Type)
		return nil
	})

	result, err := env.orch.StoreFactualMemory(ctx, "user-1", "User: I live in Tokyo now.", 0.5)
	gt.NoError(t, err)
	gt.True(t, result.Success)
	gt.A(t, events).Length(1)
	gt.Equal(t, events[0], "memory.factual.stored")
}

func TestStoreExtractedFailure(t *testing.T) {
	ctx := context.Background()

	env := newTestEnv(t, func(deps *memory.Deps) {
		deps.FactualExtractor = &mockExtractor{
			extractFunc: func(ctx context.Context, userID, dialog string, importance float64) (*model.OperationResult, error) {
				return nil, errors.New("model unavailable")
			},
		}
	})

	result, err := env.orch.StoreFactualMemory(ctx, "user-1", "User: hello", 0.5)
	gt.Error(t, err)
	gt.V(t, result).NotNil()
	gt.True(t, !result.Success)

	// no extraction service wired for episodic
	_, err = env.orch.StoreEpisodicMemory(ctx, "user-1", "User: hello", 0.5)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidMemoryType))
}

func TestSearchUnsupportedKind(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	_, err := env.orch.SearchMemories(ctx, "user-1", model.MemoryTypeWorking, "query", 5)
	gt.Error(t, err)

	_, err = env.orch.SearchMemories(ctx, "user-1", model.MemoryType("bogus"), "query", 5)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidMemoryType))
}

func TestWorkingMemoryCleanup(t *testing.T) {
	ctx := context.Background()

	var events []string
	env := newTestEnv(t, nil)
	env.bus.Subscribe("memory.working.expired", func(ctx context.Context, ev *eventbus.Event) error {
		events = append(events, ev.Type)
		return nil
	})

	_, err := env.orch.CreateMemory(ctx, createReq(model.MemoryTypeWorking, "user-1", "live task"))
	gt.NoError(t, err)

	zero := 0
	expiredReq := createReq(model.MemoryTypeWorking, "user-1", "stale task")
	expiredReq.TTLSeconds = &zero
	_, err = env.orch.CreateMemory(ctx, expiredReq)
	gt.NoError(t, err)

	active, err := env.orch.GetActiveWorkingMemories(ctx, "user-1")
	gt.NoError(t, err)
	gt.A(t, active).Length(1)
	gt.Equal(t, active[0].Content, "live task")

	n, err := env.orch.CleanupExpiredWorkingMemories(ctx, "user-1")
	gt.NoError(t, err)
	gt.Equal(t, n, 1)
	gt.A(t, events).Length(1)

	// nothing left to sweep, no event
	n, err = env.orch.CleanupExpiredWorkingMemories(ctx, "user-1")
	gt.NoError(t, err)
	gt.Equal(t, n, 0)
	gt.A(t, events).Length(1)
}

func TestEndSession(t *testing.T) {
	ctx := context.Background()

	var events []*eventbus.Event
	env := newTestEnv(t, nil)
	env.bus.Subscribe("memory.session.deactivated", func(ctx context.Context, ev *eventbus.Event) error {
		events = append(events, ev)
		return nil
	})

	for i := 0; i < 2; i++ {
		_, err := env.orch.CreateMemory(ctx, createReq(model.MemoryTypeSession, "user-1", "turn"))
		gt.NoError(t, err)
	}

	n, err := env.orch.EndSession(ctx, "user-1", "sess-1")
	gt.NoError(t, err)
	gt.Equal(t, n, 2)
	gt.A(t, events).Length(1)
	gt.Equal(t, events[0].Data["session_id"], any("sess-1"))
}

func TestReconcileVectors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	mem, err := env.orch.CreateMemory(ctx, createReq(model.MemoryTypeFactual, "user-1", "fact without vector"))
	gt.NoError(t, err)

	missing, err := env.orch.ReconcileVectors(ctx)
	gt.NoError(t, err)
	gt.A(t, missing[model.MemoryTypeFactual]).Length(1)
	gt.Equal(t, missing[model.MemoryTypeFactual][0], mem.Base().ID)

	gt.NoError(t, env.vectors.Upsert(ctx, "factual_memories", string(mem.Base().ID),
		[]float32{1, 0, 0}, map[string]string{"user_id": "user-1", "content": "fact without vector"}))

	missing, err = env.orch.ReconcileVectors(ctx)
	gt.NoError(t, err)
	gt.A(t, missing[model.MemoryTypeFactual]).Length(0)
}
