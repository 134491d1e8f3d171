package adapter_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/framekit/memoria/pkg/adapter"
)

func TestChromemUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	store := adapter.NewChromem()

	gt.NoError(t, store.EnsureCollection(ctx, "factual_memories", 3))
	gt.NoError(t, store.EnsureCollection(ctx, "factual_memories", 3))

	gt.NoError(t, store.Upsert(ctx, "factual_memories", "mem-1",
		[]float32{1, 0, 0}, map[string]string{"user_id": "user-1", "content": "lives in Tokyo"}))
	gt.NoError(t, store.Upsert(ctx, "factual_memories", "mem-2",
		[]float32{0, 1, 0}, map[string]string{"user_id": "user-2", "content": "lives in Osaka"}))

	hits, err := store.Search(ctx, "factual_memories", []float32{1, 0, 0},
		map[string]string{"user_id": "user-1"}, 10, 0)
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
	gt.Equal(t, hits[0].ID, "mem-1")
	gt.Equal(t, hits[0].Payload["content"], "lives in Tokyo")
}

func TestChromemSearchEmptyCollection(t *testing.T) {
	ctx := context.Background()
	store := adapter.NewChromem()

	gt.NoError(t, store.EnsureCollection(ctx, "episodic_memories", 3))

	hits, err := store.Search(ctx, "episodic_memories", []float32{1, 0, 0}, nil, 10, 0)
	gt.NoError(t, err)
	gt.A(t, hits).Length(0)
}

func TestChromemDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := adapter.NewChromem()

	gt.NoError(t, store.EnsureCollection(ctx, "semantic_memories", 3))

	err := store.Upsert(ctx, "semantic_memories", "mem-1", []float32{1, 0}, nil)
	gt.Error(t, err)
}

func TestChromemUnknownCollection(t *testing.T) {
	ctx := context.Background()
	store := adapter.NewChromem()

	_, err := store.Search(ctx, "missing", []float32{1}, nil, 1, 0)
	gt.Error(t, err)
}

func TestChromemHas(t *testing.T) {
	ctx := context.Background()
	store := adapter.NewChromem()

	gt.NoError(t, store.EnsureCollection(ctx, "procedural_memories", 2))
	gt.NoError(t, store.Upsert(ctx, "procedural_memories", "mem-1", []float32{1, 0}, map[string]string{"content": "x"}))

	ok, err := store.Has(ctx, "procedural_memories", "mem-1")
	gt.NoError(t, err)
	gt.True(t, ok)

	ok, err = store.Has(ctx, "procedural_memories", "mem-2")
	gt.NoError(t, err)
	gt.True(t, !ok)
}
