package extract

import (
	"bytes"
	"context"
	_ "embed"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/framekit/memoria/pkg/adapter"
	"github.com/framekit/memoria/pkg/model"
	"github.com/framekit/memoria/pkg/repository"
	"github.com/framekit/memoria/pkg/utils/logging"
)

//go:embed prompt/semantic.md
var semanticPromptRaw string

var semanticPromptTmpl = template.Must(template.New("semantic").Parse(semanticPromptRaw))

const semanticSystemPrompt = "You are a memory extraction engine. " +
	"You turn dialog text into structured semantic memories: concepts and general knowledge."

var semanticSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"concepts": {
			Type:        genai.TypeArray,
			Description: "Concepts explained in the dialog",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"concept": {
						Type:        genai.TypeString,
						Description: "Name of the concept",
					},
					"definition": {
						Type:        genai.TypeString,
						Description: "What the concept means",
					},
					"concept_type": {
						Type:        genai.TypeString,
						Description: "Category such as technology, science, culture",
					},
					"abstraction_level": {
						Type:        genai.TypeString,
						Description: "One of: low, medium, high",
					},
					"related_concepts": {
						Type:        genai.TypeArray,
						Description: "Names of related concepts",
						Items:       &genai.Schema{Type: genai.TypeString},
					},
					"confidence": {
						Type:        genai.TypeNumber,
						Description: "Extraction confidence in [0,1]",
					},
				},
				Required: []string{"concept", "definition", "concept_type"},
			},
		},
	},
	Required: []string{"concepts"},
}

type conceptCandidate struct {
	Concept          string   `json:"concept"`
	Definition       string   `json:"definition"`
	ConceptType      string   `json:"concept_type"`
	AbstractionLevel string   `json:"abstraction_level"`
	RelatedConcepts  []string `json:"related_concepts"`
	Confidence       float64  `json:"confidence"`
}

func (c *conceptCandidate) valid() bool {
	return c.Concept != "" && c.Definition != "" && c.ConceptType != ""
}

// Semantic extracts concepts and definitions from dialog text
type Semantic struct {
	llm      adapter.LLM
	embedder adapter.Embedder
	vectors  adapter.VectorStore
	repo     *repository.Semantic
	ensured  ensureOnce
}

// NewSemantic creates the semantic extraction service
func NewSemantic(llm adapter.LLM, embedder adapter.Embedder, vectors adapter.VectorStore, repo *repository.Semantic) *Semantic {
	return &Semantic{llm: llm, embedder: embedder, vectors: vectors, repo: repo}
}

// Extract asks the model for concepts in the dialog, validates them,
// and persists accepted concepts as rows plus vector entries.
func (s *Semantic) Extract(ctx context.Context, userID, dialog string, importance float64) (*model.OperationResult, error) {
	logger := logging.From(ctx)

	collection := CollectionName(model.MemoryTypeSemantic)
	if err := s.ensured.ensure(ctx, s.vectors, collection, s.embedder.Dimension()); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := semanticPromptTmpl.Execute(&buf, map[string]any{"Dialog": dialog}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute semantic prompt template")
	}

	raw, err := s.llm.GenerateJSON(ctx, semanticSystemPrompt, buf.String(), semanticSchema)
	if err != nil {
		return nil, goerr.Wrap(model.ErrExtractionFailed, "semantic extraction call failed",
			goerr.V("cause", err.Error()))
	}

	var parsed struct {
		Concepts []conceptCandidate `json:"concepts"`
	}
	if err := decodeCandidates(raw, &parsed); err != nil {
		return nil, err
	}

	var ids []model.MemoryID
	for _, c := range parsed.Concepts {
		if !c.valid() {
			logger.Debug("dropping invalid concept candidate", "candidate", c)
			continue
		}

		// Already-known concepts are skipped, never overwritten
		existing, err := s.repo.FindByConcept(ctx, userID, c.Concept)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			logger.Debug("skipping known concept", "concept", c.Concept, "existing_id", existing.ID)
			continue
		}

		mem := model.NewSemanticMemory(userID, c.Concept)
		mem.ConceptType = c.ConceptType
		mem.Definition = c.Definition
		if lvl := model.AbstractionLevel(c.AbstractionLevel); lvl.Validate() == nil {
			mem.AbstractionLevel = lvl
		}
		if len(c.RelatedConcepts) > 0 {
			mem.RelatedConcepts = c.RelatedConcepts
		}
		mem.ImportanceScore = importance
		if c.Confidence > 0 {
			mem.Confidence = c.Confidence
		}

		if err := s.repo.Create(ctx, mem); err != nil {
			return nil, err
		}

		payload := basePayload(userID, mem.CreatedAt)
		payload["concept_type"] = mem.ConceptType
		upsertVector(ctx, s.embedder, s.vectors, collection, mem.ID, mem.Content+": "+mem.Definition, payload)

		ids = append(ids, mem.ID)
	}

	if len(ids) == 0 {
		return noValidCandidates(), nil
	}
	return storedResult(ids), nil
}

// Search returns concepts semantically similar to query
func (s *Semantic) Search(ctx context.Context, userID, query string, limit int) ([]model.Memory, error) {
	collection := CollectionName(model.MemoryTypeSemantic)
	if err := s.ensured.ensure(ctx, s.vectors, collection, s.embedder.Dimension()); err != nil {
		return nil, err
	}

	ids, err := searchHits(ctx, s.embedder, s.vectors, collection, userID, query, limit)
	if err != nil {
		return nil, err
	}

	out := make([]model.Memory, 0, len(ids))
	for _, id := range ids {
		mem, err := s.repo.Get(ctx, id, userID)
		if err != nil {
			return nil, err
		}
		if mem != nil {
			out = append(out, mem)
		}
	}
	return out, nil
}
