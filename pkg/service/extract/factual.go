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

//go:embed prompt/factual.md
var factualPromptRaw string

var factualPromptTmpl = template.Must(template.New("factual").Parse(factualPromptRaw))

const factualSystemPrompt = "You are a memory extraction engine. " +
	"You turn dialog text into structured factual memories about the user."

var factualSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"facts": {
			Type:        genai.TypeArray,
			Description: "Facts stated in the dialog",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"subject": {
						Type:        genai.TypeString,
						Description: "Who or what the fact is about",
					},
					"predicate": {
						Type:        genai.TypeString,
						Description: "The relation, e.g. lives_in, works_at, likes",
					},
					"object": {
						Type:        genai.TypeString,
						Description: "The value of the relation",
					},
					"fact_type": {
						Type:        genai.TypeString,
						Description: "Category such as personal, preference, relationship",
					},
					"confidence": {
						Type:        genai.TypeNumber,
						Description: "Extraction confidence in [0,1]",
					},
				},
				Required: []string{"subject", "predicate", "object"},
			},
		},
	},
	Required: []string{"facts"},
}

type factCandidate struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	FactType   string  `json:"fact_type"`
	Confidence float64 `json:"confidence"`
}

func (c *factCandidate) valid() bool {
	return c.Subject != "" && c.Predicate != "" && c.Object != ""
}

// Factual extracts subject-predicate-object facts from dialog text
type Factual struct {
	llm      adapter.LLM
	embedder adapter.Embedder
	vectors  adapter.VectorStore
	repo     *repository.Factual
	ensured  ensureOnce
}

// NewFactual creates the factual extraction service
func NewFactual(llm adapter.LLM, embedder adapter.Embedder, vectors adapter.VectorStore, repo *repository.Factual) *Factual {
	return &Factual{llm: llm, embedder: embedder, vectors: vectors, repo: repo}
}

// Extract asks the model for facts in the dialog, validates them,
// de-duplicates on (user_id, subject, predicate), and persists accepted
// facts as rows plus vector entries.
func (s *Factual) Extract(ctx context.Context, userID, dialog string, importance float64) (*model.OperationResult, error) {
	logger := logging.From(ctx)

	collection := CollectionName(model.MemoryTypeFactual)
	if err := s.ensured.ensure(ctx, s.vectors, collection, s.embedder.Dimension()); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := factualPromptTmpl.Execute(&buf, map[string]any{"Dialog": dialog}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute factual prompt template")
	}

	raw, err := s.llm.GenerateJSON(ctx, factualSystemPrompt, buf.String(), factualSchema)
	if err != nil {
		return nil, goerr.Wrap(model.ErrExtractionFailed, "factual extraction call failed",
			goerr.V("cause", err.Error()))
	}

	var parsed struct {
		Facts []factCandidate `json:"facts"`
	}
	if err := decodeCandidates(raw, &parsed); err != nil {
		return nil, err
	}

	var ids []model.MemoryID
	for _, c := range parsed.Facts {
		if !c.valid() {
			logger.Debug("dropping invalid fact candidate", "candidate", c)
			continue
		}

		// Already-known facts are skipped, never overwritten
		existing, err := s.repo.FindBySubjectPredicate(ctx, userID, c.Subject, c.Predicate)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			logger.Debug("skipping duplicate fact",
				"subject", c.Subject, "predicate", c.Predicate, "existing_id", existing.ID)
			continue
		}

		mem := model.NewFactualMemory(userID, c.Subject+" "+c.Predicate+" "+c.Object)
		mem.Subject = c.Subject
		mem.Predicate = c.Predicate
		mem.ObjectValue = c.Object
		mem.FactType = c.FactType
		mem.ImportanceScore = importance
		if c.Confidence > 0 {
			mem.Confidence = c.Confidence
		}

		if err := s.repo.Create(ctx, mem); err != nil {
			return nil, err
		}

		payload := basePayload(userID, mem.CreatedAt)
		payload["fact_type"] = mem.FactType
		upsertVector(ctx, s.embedder, s.vectors, collection, mem.ID, mem.Content, payload)

		ids = append(ids, mem.ID)
	}

	if len(ids) == 0 {
		return noValidCandidates(), nil
	}
	return storedResult(ids), nil
}

// Search returns facts semantically similar to query
func (s *Factual) Search(ctx context.Context, userID, query string, limit int) ([]model.Memory, error) {
	collection := CollectionName(model.MemoryTypeFactual)
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
