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

//go:embed prompt/procedural.md
var proceduralPromptRaw string

var proceduralPromptTmpl = template.Must(template.New("procedural").Parse(proceduralPromptRaw))

const proceduralSystemPrompt = "You are a memory extraction engine. " +
	"You turn dialog text into structured procedural memories: skills and how-to sequences."

var proceduralSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"procedures": {
			Type:        genai.TypeArray,
			Description: "Procedures described in the dialog",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"summary": {
						Type:        genai.TypeString,
						Description: "What the procedure accomplishes",
					},
					"skill_type": {
						Type:        genai.TypeString,
						Description: "Category such as cooking, programming, sports",
					},
					"steps": {
						Type:        genai.TypeArray,
						Description: "Ordered steps of the procedure",
						Items:       &genai.Schema{Type: genai.TypeString},
					},
					"prerequisites": {
						Type:        genai.TypeArray,
						Description: "What is needed before starting",
						Items:       &genai.Schema{Type: genai.TypeString},
					},
					"difficulty": {
						Type:        genai.TypeString,
						Description: "One of: easy, medium, hard",
					},
					"success_rate": {
						Type:        genai.TypeNumber,
						Description: "Estimated success rate in [0,1]",
					},
					"confidence": {
						Type:        genai.TypeNumber,
						Description: "Extraction confidence in [0,1]",
					},
				},
				Required: []string{"summary", "skill_type", "steps"},
			},
		},
	},
	Required: []string{"procedures"},
}

type procedureCandidate struct {
	Summary       string   `json:"summary"`
	SkillType     string   `json:"skill_type"`
	Steps         []string `json:"steps"`
	Prerequisites []string `json:"prerequisites"`
	Difficulty    string   `json:"difficulty"`
	SuccessRate   float64  `json:"success_rate"`
	Confidence    float64  `json:"confidence"`
}

func (c *procedureCandidate) valid() bool {
	return c.Summary != "" && c.SkillType != "" && len(c.Steps) > 0
}

// Procedural extracts skills and how-to sequences from dialog text
type Procedural struct {
	llm      adapter.LLM
	embedder adapter.Embedder
	vectors  adapter.VectorStore
	repo     *repository.Procedural
	ensured  ensureOnce
}

// NewProcedural creates the procedural extraction service
func NewProcedural(llm adapter.LLM, embedder adapter.Embedder, vectors adapter.VectorStore, repo *repository.Procedural) *Procedural {
	return &Procedural{llm: llm, embedder: embedder, vectors: vectors, repo: repo}
}

// Extract asks the model for procedures in the dialog, validates them,
// and persists accepted procedures as rows plus vector entries.
func (s *Procedural) Extract(ctx context.Context, userID, dialog string, importance float64) (*model.OperationResult, error) {
	logger := logging.From(ctx)

	collection := CollectionName(model.MemoryTypeProcedural)
	if err := s.ensured.ensure(ctx, s.vectors, collection, s.embedder.Dimension()); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := proceduralPromptTmpl.Execute(&buf, map[string]any{"Dialog": dialog}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute procedural prompt template")
	}

	raw, err := s.llm.GenerateJSON(ctx, proceduralSystemPrompt, buf.String(), proceduralSchema)
	if err != nil {
		return nil, goerr.Wrap(model.ErrExtractionFailed, "procedural extraction call failed",
			goerr.V("cause", err.Error()))
	}

	var parsed struct {
		Procedures []procedureCandidate `json:"procedures"`
	}
	if err := decodeCandidates(raw, &parsed); err != nil {
		return nil, err
	}

	var ids []model.MemoryID
	for _, c := range parsed.Procedures {
		if !c.valid() {
			logger.Debug("dropping invalid procedure candidate", "candidate", c)
			continue
		}

		mem := model.NewProceduralMemory(userID, c.Summary)
		mem.SkillType = c.SkillType
		mem.Steps = make([]model.ProcedureStep, 0, len(c.Steps))
		for i, step := range c.Steps {
			mem.Steps = append(mem.Steps, model.ProcedureStep{Order: i + 1, Description: step})
		}
		if len(c.Prerequisites) > 0 {
			mem.Prerequisites = c.Prerequisites
		}
		if lvl := model.DifficultyLevel(c.Difficulty); lvl.Validate() == nil {
			mem.DifficultyLevel = lvl
		}
		if c.SuccessRate >= 0 && c.SuccessRate <= 1 {
			mem.SuccessRate = c.SuccessRate
		}
		mem.ImportanceScore = importance
		if c.Confidence > 0 {
			mem.Confidence = c.Confidence
		}

		if err := s.repo.Create(ctx, mem); err != nil {
			return nil, err
		}

		payload := basePayload(userID, mem.CreatedAt)
		payload["skill_type"] = mem.SkillType
		upsertVector(ctx, s.embedder, s.vectors, collection, mem.ID, mem.Content, payload)

		ids = append(ids, mem.ID)
	}

	if len(ids) == 0 {
		return noValidCandidates(), nil
	}
	return storedResult(ids), nil
}

// Search returns procedures semantically similar to query
func (s *Procedural) Search(ctx context.Context, userID, query string, limit int) ([]model.Memory, error) {
	collection := CollectionName(model.MemoryTypeProcedural)
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
