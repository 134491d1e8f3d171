package repository_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/framekit/memoria/pkg/model"
	"github.com/framekit/memoria/pkg/repository"
)

func ttl(seconds int) *int {
	return &seconds
}

func newTestDB(t *testing.T) *repository.DB {
	t.Helper()
	db, err := repository.Open(filepath.Join(t.TempDir(), "memoria.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestFactualRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewFactual(newTestDB(t))

	m := model.NewFactualMemory("user-1", "user lives in Tokyo")
	m.Subject = "user"
	m.Predicate = "lives_in"
	m.ObjectValue = "Tokyo"
	m.FactType = "location"
	m.Tags = []string{"home"}
	m.Context = map[string]any{"source": "chat"}
	gt.NoError(t, repo.Create(ctx, m))

	got, err := repo.Get(ctx, m.ID, "user-1")
	gt.NoError(t, err)
	gt.V(t, got).NotNil()
	gt.Equal(t, got.Subject, "user")
	gt.Equal(t, got.Predicate, "lives_in")
	gt.Equal(t, got.ObjectValue, "Tokyo")
	gt.Equal(t, got.ImportanceScore, 0.5)
	gt.Equal(t, got.Confidence, 0.8)
	gt.Equal(t, got.AccessCount, 0)
	gt.Equal(t, got.Tags, []string{"home"})
}

func TestFactualGetAbsentReturnsNil(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewFactual(newTestDB(t))

	got, err := repo.Get(ctx, model.NewMemoryID(), "user-1")
	gt.NoError(t, err)
	gt.True(t, got == nil)
}

func TestFactualGetOtherUserIsolated(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewFactual(newTestDB(t))

	m := model.NewFactualMemory("user-1", "user likes coffee")
	m.Subject = "user"
	m.Predicate = "likes"
	m.ObjectValue = "coffee"
	gt.NoError(t, repo.Create(ctx, m))

	got, err := repo.Get(ctx, m.ID, "user-2")
	gt.NoError(t, err)
	gt.True(t, got == nil)
}

func TestFactualGetUnscopedByUser(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewFactual(newTestDB(t))

	m := model.NewFactualMemory("user-1", "user likes coffee")
	m.Subject = "user"
	m.Predicate = "likes"
	m.ObjectValue = "coffee"
	gt.NoError(t, repo.Create(ctx, m))

	// empty userID matches the row regardless of owner
	got, err := repo.Get(ctx, m.ID, "")
	gt.NoError(t, err)
	gt.V(t, got).NotNil()
	gt.Equal(t, got.UserID, "user-1")
}

func TestFactualFindBySubjectPredicate(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewFactual(newTestDB(t))

	m := model.NewFactualMemory("user-1", "user works at Acme")
	m.Subject = "user"
	m.Predicate = "works_at"
	m.ObjectValue = "Acme"
	gt.NoError(t, repo.Create(ctx, m))

	found, err := repo.FindBySubjectPredicate(ctx, "user-1", "user", "works_at")
	gt.NoError(t, err)
	gt.V(t, found).NotNil()
	gt.Equal(t, found.ID, m.ID)

	none, err := repo.FindBySubjectPredicate(ctx, "user-1", "user", "lives_in")
	gt.NoError(t, err)
	gt.True(t, none == nil)
}

func TestFactualSearchBySubject(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewFactual(newTestDB(t))

	for i, object := range []string{"Tokyo", "Osaka"} {
		m := model.NewFactualMemory("user-1", "user visited "+object)
		m.Subject = "user"
		m.Predicate = fmt.Sprintf("visited_%d", i)
		m.ObjectValue = object
		gt.NoError(t, repo.Create(ctx, m))
	}

	other := model.NewFactualMemory("user-1", "cat sleeps")
	other.Subject = "cat"
	other.Predicate = "does"
	other.ObjectValue = "sleep"
	gt.NoError(t, repo.Create(ctx, other))

	hits, err := repo.SearchBySubject(ctx, "user-1", "user", 10)
	gt.NoError(t, err)
	gt.A(t, hits).Length(2)
}

func TestFactualListOrderAndPaging(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewFactual(newTestDB(t))

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		m := model.NewFactualMemory("user-1", fmt.Sprintf("fact %d", i))
		m.Subject = "user"
		m.Predicate = fmt.Sprintf("p%d", i)
		m.ObjectValue = "v"
		m.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		m.UpdatedAt = m.CreatedAt
		gt.NoError(t, repo.Create(ctx, m))
	}

	page, err := repo.List(ctx, "user-1", 2, 0)
	gt.NoError(t, err)
	gt.A(t, page).Length(2)
	gt.Equal(t, page[0].Content, "fact 4")
	gt.Equal(t, page[1].Content, "fact 3")

	next, err := repo.List(ctx, "user-1", 2, 2)
	gt.NoError(t, err)
	gt.A(t, next).Length(2)
	gt.Equal(t, next[0].Content, "fact 2")
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewFactual(newTestDB(t))

	m := model.NewFactualMemory("user-1", "old content")
	m.Subject = "user"
	m.Predicate = "p"
	m.ObjectValue = "v"
	gt.NoError(t, repo.Create(ctx, m))

	gt.NoError(t, repo.Update(ctx, m.ID, "user-1", map[string]any{
		"content":          "new content",
		"importance_score": 0.9,
	}))

	got, err := repo.Get(ctx, m.ID, "user-1")
	gt.NoError(t, err)
	gt.Equal(t, got.Content, "new content")
	gt.Equal(t, got.ImportanceScore, 0.9)
	gt.True(t, got.UpdatedAt.After(m.UpdatedAt))

	gt.NoError(t, repo.Delete(ctx, m.ID, "user-1"))

	gone, err := repo.Get(ctx, m.ID, "user-1")
	gt.NoError(t, err)
	gt.True(t, gone == nil)
}

func TestUpdateMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewFactual(newTestDB(t))

	err := repo.Update(ctx, model.NewMemoryID(), "user-1", map[string]any{"content": "x"})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrNotFound))

	err = repo.Delete(ctx, model.NewMemoryID(), "user-1")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrNotFound))
}

func TestIncrementAccessKeepsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewFactual(newTestDB(t))

	m := model.NewFactualMemory("user-1", "fact")
	m.Subject = "user"
	m.Predicate = "p"
	m.ObjectValue = "v"
	gt.NoError(t, repo.Create(ctx, m))

	gt.NoError(t, repo.IncrementAccess(ctx, m.ID, "user-1"))
	gt.NoError(t, repo.IncrementAccess(ctx, m.ID, "user-1"))

	got, err := repo.Get(ctx, m.ID, "user-1")
	gt.NoError(t, err)
	gt.Equal(t, got.AccessCount, 2)
	gt.Equal(t, got.UpdatedAt.Unix(), m.UpdatedAt.Unix())
}

func TestEpisodicQueries(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewEpisodic(newTestDB(t))

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, eventType := range []string{"meeting", "meeting", "trip"} {
		m := model.NewEpisodicMemory("user-1", fmt.Sprintf("event %d", i))
		m.EventType = eventType
		m.EpisodeDate = base.AddDate(0, 0, i)
		m.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		m.UpdatedAt = m.CreatedAt
		m.Participants = []string{"alice"}
		m.EmotionalValence = 0.4
		m.Vividness = 0.7
		gt.NoError(t, repo.Create(ctx, m))
	}

	meetings, err := repo.ListByEventType(ctx, "user-1", "meeting", 10)
	gt.NoError(t, err)
	gt.A(t, meetings).Length(2)
	gt.Equal(t, meetings[0].EventType, "meeting")

	ranged, err := repo.ListByDateRange(ctx, "user-1", base, base.AddDate(0, 0, 2), 10)
	gt.NoError(t, err)
	gt.A(t, ranged).Length(2)
}

func TestProceduralStepsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewProcedural(newTestDB(t))

	m := model.NewProceduralMemory("user-1", "how to deploy")
	m.SkillType = "devops"
	m.Steps = []model.ProcedureStep{
		{Order: 1, Description: "run tests"},
		{Order: 2, Description: "tag release"},
	}
	m.Prerequisites = []string{"repo access"}
	m.DifficultyLevel = model.DifficultyHard
	m.SuccessRate = 0.9
	gt.NoError(t, repo.Create(ctx, m))

	got, err := repo.Get(ctx, m.ID, "user-1")
	gt.NoError(t, err)
	gt.A(t, got.Steps).Length(2)
	gt.Equal(t, got.Steps[1].Description, "tag release")
	gt.Equal(t, got.DifficultyLevel, model.DifficultyHard)

	bySkill, err := repo.ListBySkillType(ctx, "user-1", "devops", 10)
	gt.NoError(t, err)
	gt.A(t, bySkill).Length(1)
}

func TestSemanticFindByConcept(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSemantic(newTestDB(t))

	m := model.NewSemanticMemory("user-1", "idempotency")
	m.ConceptType = "principle"
	m.Definition = "repeating an operation yields the same result"
	gt.NoError(t, repo.Create(ctx, m))

	found, err := repo.FindByConcept(ctx, "user-1", "idempotency")
	gt.NoError(t, err)
	gt.V(t, found).NotNil()
	gt.Equal(t, found.ID, m.ID)

	none, err := repo.FindByConcept(ctx, "user-1", "latency")
	gt.NoError(t, err)
	gt.True(t, none == nil)

	byType, err := repo.ListByConceptType(ctx, "user-1", "principle", 10)
	gt.NoError(t, err)
	gt.A(t, byType).Length(1)
}

func TestWorkingExpiry(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewWorking(newTestDB(t))

	live := model.NewWorkingMemory("user-1", "current task", ttl(3600))
	live.TaskID = "task-1"
	gt.NoError(t, repo.Create(ctx, live))

	// explicit zero ttl expires on creation
	expired := model.NewWorkingMemory("user-1", "stale task", ttl(0))
	gt.NoError(t, repo.Create(ctx, expired))
	gt.True(t, expired.Expired(time.Now().UTC()))

	active, err := repo.GetActive(ctx, "user-1")
	gt.NoError(t, err)
	gt.A(t, active).Length(1)
	gt.Equal(t, active[0].ID, live.ID)

	n, err := repo.CleanupExpired(ctx, "user-1")
	gt.NoError(t, err)
	gt.Equal(t, n, 1)

	gone, err := repo.Get(ctx, expired.ID, "user-1")
	gt.NoError(t, err)
	gt.True(t, gone == nil)
}

func TestWorkingDefaultTTL(t *testing.T) {
	m := model.NewWorkingMemory("user-1", "task", nil)
	gt.Equal(t, m.TTLSeconds, 3600)
	gt.True(t, m.ExpiresAt.After(time.Now().UTC().Add(59*time.Minute)))
}

func TestWorkingUpdateStatus(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewWorking(newTestDB(t))

	m := model.NewWorkingMemory("user-1", "task", ttl(3600))
	gt.NoError(t, repo.Create(ctx, m))

	gt.NoError(t, repo.UpdateStatus(ctx, m.ID, "user-1", "completed"))

	got, err := repo.Get(ctx, m.ID, "user-1")
	gt.NoError(t, err)
	gt.Equal(t, got.Status, "completed")
}

func TestSessionSequenceAndLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSession(newTestDB(t))

	seq, err := repo.NextSequence(ctx, "sess-1")
	gt.NoError(t, err)
	gt.Equal(t, seq, 1)

	for i := 0; i < 3; i++ {
		m := model.NewSessionMemory("user-1", "sess-1", fmt.Sprintf("turn %d", i))
		m.InteractionSequence, err = repo.NextSequence(ctx, "sess-1")
		gt.NoError(t, err)
		gt.NoError(t, repo.Create(ctx, m))
	}

	seq, err = repo.NextSequence(ctx, "sess-1")
	gt.NoError(t, err)
	gt.Equal(t, seq, 4)

	turns, err := repo.ListBySession(ctx, "user-1", "sess-1")
	gt.NoError(t, err)
	gt.A(t, turns).Length(3)
	gt.Equal(t, turns[0].InteractionSequence, 1)
	gt.Equal(t, turns[2].InteractionSequence, 3)

	n, err := repo.Deactivate(ctx, "user-1", "sess-1")
	gt.NoError(t, err)
	gt.Equal(t, n, 3)

	n, err = repo.Deactivate(ctx, "user-1", "sess-1")
	gt.NoError(t, err)
	gt.Equal(t, n, 0)
}

func TestSessionSoftDelete(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSession(newTestDB(t))

	m := model.NewSessionMemory("user-1", "sess-1", "turn")
	m.InteractionSequence = 1
	gt.NoError(t, repo.Create(ctx, m))

	gt.NoError(t, repo.SoftDelete(ctx, m.ID, "user-1"))

	got, err := repo.Get(ctx, m.ID, "user-1")
	gt.NoError(t, err)
	gt.V(t, got).NotNil()
	gt.True(t, !got.Active)

	err = repo.SoftDelete(ctx, model.NewMemoryID(), "user-1")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrNotFound))
}
