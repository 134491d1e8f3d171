package extract

import (
	"bytes"
	"context"
	_ "embed"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/framekit/memoria/pkg/adapter"
	"github.com/framekit/memoria/pkg/model"
	"github.com/framekit/memoria/pkg/repository"
	"github.com/framekit/memoria/pkg/utils/logging"
)

//go:embed prompt/episodic.md
var episodicPromptRaw string

var episodicPromptTmpl = template.Must(template.New("episodic").Parse(episodicPromptRaw))

const episodicSystemPrompt = "You are a memory extraction engine. " +
	"You turn dialog text into structured episodic memories: events the user experienced."

var episodicSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"episodes": {
			Type:        genai.TypeArray,
			Description: "Events described in the dialog",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"summary": {
						Type:        genai.TypeString,
						Description: "One-sentence description of the event",
					},
					"event_type": {
						Type:        genai.TypeString,
						Description: "Category such as travel, meeting, milestone",
					},
					"location": {
						Type:        genai.TypeString,
						Description: "Where the event happened, empty if unknown",
					},
					"participants": {
						Type:        genai.TypeArray,
						Description: "People involved in the event",
						Items:       &genai.Schema{Type: genai.TypeString},
					},
					"emotional_valence": {
						Type:        genai.TypeNumber,
						Description: "Emotional tone in [-1,1]",
					},
					"vividness": {
						Type:        genai.TypeNumber,
						Description: "Detail level in [0,1]",
					},
					"confidence": {
						Type:        genai.TypeNumber,
						Description: "Extraction confidence in [0,1]",
					},
				},
				Required: []string{"summary", "event_type"},
			},
		},
	},
	Required: []string{"episodes"},
}

type episodeCandidate struct {
	Summary          string   `json:"summary"`
	EventType        string   `json:"event_type"`
	Location         string   `json:"location"`
	Participants     []string `json:"participants"`
	EmotionalValence float64  `json:"emotional_valence"`
	Vividness        float64  `json:"vividness"`
	Confidence       float64  `json:"confidence"`
}

func (c *episodeCandidate) valid() bool {
	return c.Summary != "" && c.EventType != "" &&
		c.EmotionalValence >= -1 && c.EmotionalValence <= 1 &&
		c.Vividness >= 0 && c.Vividness <= 1
}

// Episodic extracts experienced events from dialog text
type Episodic struct {
	llm      adapter.LLM
	embedder adapter.Embedder
	vectors  adapter.VectorStore
	repo     *repository.Episodic
	ensured  ensureOnce
}

// NewEpisodic creates the episodic extraction service
func NewEpisodic(llm adapter.LLM, embedder adapter.Embedder, vectors adapter.VectorStore, repo *repository.Episodic) *Episodic {
	return &Episodic{llm: llm, embedder: embedder, vectors: vectors, repo: repo}
}

// Extract asks the model for events in the dialog, validates them, and
// persists accepted episodes as rows plus vector entries.
func (s *Episodic) Extract(ctx context.Context, userID, dialog string, importance float64) (*model.OperationResult, error) {
	logger := logging.From(ctx)

	collection := CollectionName(model.MemoryTypeEpisodic)
	if err := s.ensured.ensure(ctx, s.vectors, collection, s.embedder.Dimension()); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := episodicPromptTmpl.Execute(&buf, map[string]any{"Dialog": dialog}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute episodic prompt template")
	}

	raw, err := s.llm.GenerateJSON(ctx, episodicSystemPrompt, buf.String(), episodicSchema)
	if err != nil {
		return nil, goerr.Wrap(model.ErrExtractionFailed, "episodic extraction call failed",
			goerr.V("cause", err.Error()))
	}

	var parsed struct {
		Episodes []episodeCandidate `json:"episodes"`
	}
	if err := decodeCandidates(raw, &parsed); err != nil {
		return nil, err
	}

	var ids []model.MemoryID
	for _, c := range parsed.Episodes {
		if !c.valid() {
			logger.Debug("dropping invalid episode candidate", "candidate", c)
			continue
		}

		mem := model.NewEpisodicMemory(userID, c.Summary)
		mem.EventType = c.EventType
		mem.Location = c.Location
		if len(c.Participants) > 0 {
			mem.Participants = c.Participants
		}
		mem.EmotionalValence = c.EmotionalValence
		mem.Vividness = c.Vividness
		mem.EpisodeDate = time.Now().UTC()
		mem.ImportanceScore = importance
		if c.Confidence > 0 {
			mem.Confidence = c.Confidence
		}

		if err := s.repo.Create(ctx, mem); err != nil {
			return nil, err
		}

		payload := basePayload(userID, mem.CreatedAt)
		payload["event_type"] = mem.EventType
		upsertVector(ctx, s.embedder, s.vectors, collection, mem.ID, mem.Content, payload)

		ids = append(ids, mem.ID)
	}

	if len(ids) == 0 {
		return noValidCandidates(), nil
	}
	return storedResult(ids), nil
}

// Search returns episodes semantically similar to query
func (s *Episodic) Search(ctx context.Context, userID, query string, limit int) ([]model.Memory, error) {
	collection := CollectionName(model.MemoryTypeEpisodic)
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
