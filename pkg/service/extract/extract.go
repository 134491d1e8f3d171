package extract

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/framekit/memoria/pkg/adapter"
	"github.com/framekit/memoria/pkg/model"
	"github.com/framekit/memoria/pkg/utils/logging"
)

// Extractor turns raw dialog text into zero or more validated,
// persisted memories of one kind, with both relational and vector
// representations.
type Extractor interface {
	Extract(ctx context.Context, userID, dialog string, importance float64) (*model.OperationResult, error)
	Search(ctx context.Context, userID, query string, limit int) ([]model.Memory, error)
}

// CollectionName returns the vector collection used for a memory type
func CollectionName(t model.MemoryType) string {
	return string(t) + "_memories"
}

// ensureOnce guards the lazy, once-per-process collection creation
type ensureOnce struct {
	once sync.Once
	err  error
}

func (e *ensureOnce) ensure(ctx context.Context, vectors adapter.VectorStore, name string, dim int) error {
	e.once.Do(func() {
		e.err = vectors.EnsureCollection(ctx, name, dim)
	})
	if e.err != nil {
		return goerr.Wrap(e.err, "failed to ensure vector collection", goerr.V("collection", name))
	}
	return nil
}

// decodeCandidates parses the model's JSON output into out. Empty or
// malformed output is an extraction failure, not zero candidates.
func decodeCandidates(raw string, out any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return goerr.Wrap(model.ErrExtractionFailed, "model returned empty output")
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return goerr.Wrap(model.ErrExtractionFailed, "model returned malformed JSON",
			goerr.V("cause", err.Error()))
	}
	return nil
}

// upsertVector embeds content and writes the satellite vector entry.
// Failures are logged and swallowed: the row is the source of truth and
// is already committed.
func upsertVector(ctx context.Context, embedder adapter.Embedder, vectors adapter.VectorStore,
	collection string, id model.MemoryID, content string, payload map[string]string) {
	logger := logging.From(ctx)

	vec, err := embedder.Embed(ctx, content)
	if err != nil {
		logger.Warn("failed to embed memory content, vector entry skipped",
			"error", err, "memory_id", id, "collection", collection)
		return
	}

	payload["content"] = content
	if err := vectors.Upsert(ctx, collection, string(id), vec, payload); err != nil {
		logger.Warn("failed to upsert memory vector, row kept without embedding",
			"error", err, "memory_id", id, "collection", collection)
	}
}

// basePayload returns the filterable payload fields every kind carries
func basePayload(userID string, createdAt time.Time) map[string]string {
	return map[string]string{
		"user_id":    userID,
		"created_at": createdAt.UTC().Format(time.RFC3339),
	}
}

// searchHits runs a user-scoped similarity search and returns the ids
// of matching records.
func searchHits(ctx context.Context, embedder adapter.Embedder, vectors adapter.VectorStore,
	collection, userID, query string, limit int) ([]model.MemoryID, error) {
	if limit <= 0 {
		limit = 10
	}

	vec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed search query")
	}

	hits, err := vectors.Search(ctx, collection, vec, map[string]string{"user_id": userID}, limit, 0)
	if err != nil {
		return nil, goerr.Wrap(err, "similarity search failed", goerr.V("collection", collection))
	}

	ids := make([]model.MemoryID, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, model.MemoryID(hit.ID))
	}
	return ids, nil
}

func noValidCandidates() *model.OperationResult {
	return &model.OperationResult{
		Success: false,
		Message: "no valid memories extracted from dialog",
	}
}

func storedResult(ids []model.MemoryID) *model.OperationResult {
	return &model.OperationResult{
		Success:   len(ids) > 0,
		Count:     len(ids),
		MemoryIDs: ids,
	}
}
