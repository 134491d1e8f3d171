package adapter

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"
)

// SearchHit is one similarity-search result
type SearchHit struct {
	ID      string
	Score   float32
	Payload map[string]string
}

// VectorStore is the vector-index capability: idempotent collection
// creation, upsert by id, filtered similarity search, and a presence
// check used by reconciliation.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]string) error
	Search(ctx context.Context, collection string, vector []float32, where map[string]string, topK int, minScore float32) ([]SearchHit, error)
	Has(ctx context.Context, collection, id string) (bool, error)
}

// ChromemStore implements VectorStore over chromem-go, an embedded
// pure-Go vector database.
type ChromemStore struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	dims        map[string]int
	mu          sync.RWMutex
}

// NewChromem creates an in-memory vector store
func NewChromem() *ChromemStore {
	return newChromemStore(chromem.NewDB())
}

// NewPersistentChromem creates a vector store persisted under dir
func NewPersistentChromem(dir string) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open persistent vector db", goerr.V("dir", dir))
	}
	return newChromemStore(db), nil
}

func newChromemStore(db *chromem.DB) *ChromemStore {
	return &ChromemStore{
		db:          db,
		collections: make(map[string]*chromem.Collection),
		dims:        make(map[string]int),
	}
}

// EnsureCollection creates the collection if it does not exist yet.
// Safe to call repeatedly.
func (s *ChromemStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	s.mu.RLock()
	_, exists := s.collections[name]
	s.mu.RUnlock()
	if exists {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.collections[name]; exists {
		return nil
	}

	col, err := s.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to create collection", goerr.V("collection", name))
	}

	s.collections[name] = col
	s.dims[name] = dim
	return nil
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, 0, goerr.New("collection does not exist", goerr.V("collection", name))
	}
	return col, s.dims[name], nil
}

// Upsert writes a vector with its payload under id
func (s *ChromemStore) Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]string) error {
	col, dim, err := s.collection(collection)
	if err != nil {
		return err
	}
	if dim > 0 && len(vector) != dim {
		return goerr.New("vector dimension mismatch",
			goerr.V("collection", collection), goerr.V("want", dim), goerr.V("got", len(vector)))
	}

	doc := chromem.Document{
		ID:        id,
		Content:   payload["content"],
		Embedding: vector,
		Metadata:  payload,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to upsert vector", goerr.V("collection", collection), goerr.V("id", id))
	}
	return nil
}

// Search returns up to topK hits with similarity >= minScore, filtered
// by exact metadata match on where.
func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, where map[string]string, topK int, minScore float32) ([]SearchHit, error) {
	col, dim, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if dim > 0 && len(vector) != dim {
		return nil, goerr.New("vector dimension mismatch",
			goerr.V("collection", collection), goerr.V("want", dim), goerr.V("got", len(vector)))
	}

	// chromem rejects nResults larger than the collection size
	if count := col.Count(); topK > count {
		topK = count
	}
	if topK <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, topK, where, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query collection", goerr.V("collection", collection))
	}

	hits := make([]SearchHit, 0, len(results))
	for _, res := range results {
		if res.Similarity < minScore {
			continue
		}
		hits = append(hits, SearchHit{
			ID:      res.ID,
			Score:   res.Similarity,
			Payload: res.Metadata,
		})
	}
	return hits, nil
}

// Has reports whether the collection holds a vector for id
func (s *ChromemStore) Has(ctx context.Context, collection, id string) (bool, error) {
	col, _, err := s.collection(collection)
	if err != nil {
		return false, err
	}

	if _, err := col.GetByID(ctx, id); err != nil {
		// chromem returns an error for unknown ids
		return false, nil
	}
	return true, nil
}
