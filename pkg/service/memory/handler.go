package memory

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"

	"github.com/framekit/memoria/pkg/model"
)

// typeHandler is the uniform contract each memory kind implements over
// its typed repository. The orchestrator holds one handler per kind in
// a dispatch table built at construction.
type typeHandler interface {
	create(ctx context.Context, req *model.CreateMemoryRequest) (model.Memory, error)
	get(ctx context.Context, id model.MemoryID, userID string) (model.Memory, error)
	trackAccess(ctx context.Context, id model.MemoryID, userID string) error
	list(ctx context.Context, userID string, limit, offset int) ([]model.Memory, error)
	update(ctx context.Context, id model.MemoryID, userID string, req *model.UpdateMemoryRequest) error
	delete(ctx context.Context, id model.MemoryID, userID string) error
	count(ctx context.Context, userID string) (int, error)
	listIDs(ctx context.Context) ([]model.MemoryID, error)
}

// applyCommon copies caller-supplied shared fields onto a new record
func applyCommon(req *model.CreateMemoryRequest, rec *model.MemoryRecord) {
	if req.ImportanceScore != nil {
		rec.ImportanceScore = *req.ImportanceScore
	}
	if req.Confidence != nil {
		rec.Confidence = *req.Confidence
	}
	if req.Tags != nil {
		rec.Tags = req.Tags
	}
	if req.Context != nil {
		rec.Context = req.Context
	}
}

// commonUpdateFields maps the shared partial-update fields to their
// columns. Returns nil when the request carries no shared changes.
func commonUpdateFields(req *model.UpdateMemoryRequest) (map[string]any, error) {
	fields := map[string]any{}
	if req.Content != nil {
		fields["content"] = *req.Content
	}
	if req.ImportanceScore != nil {
		fields["importance_score"] = *req.ImportanceScore
	}
	if req.Confidence != nil {
		fields["confidence"] = *req.Confidence
	}
	if req.Tags != nil {
		raw, err := json.Marshal(req.Tags)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to encode tags")
		}
		fields["tags"] = string(raw)
	}
	if req.Context != nil {
		raw, err := json.Marshal(req.Context)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to encode context")
		}
		fields["context"] = string(raw)
	}
	return fields, nil
}

// asMemories converts a typed slice to the shared Memory interface
func asMemories[T model.Memory](in []T) []model.Memory {
	out := make([]model.Memory, 0, len(in))
	for _, m := range in {
		out = append(out, m)
	}
	return out
}
