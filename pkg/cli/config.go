package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/framekit/memoria/pkg/adapter"
	"github.com/framekit/memoria/pkg/eventbus"
	"github.com/framekit/memoria/pkg/repository"
	"github.com/framekit/memoria/pkg/service/extract"
	"github.com/framekit/memoria/pkg/service/memory"
	"github.com/framekit/memoria/pkg/utils/logging"
)

// config holds configuration values
type config struct {
	// Storage
	dbPath    string
	vectorDir string

	// Logging
	logLevel  string
	logFormat string

	// Adapters
	llmProvider     string
	anthropicAPIKey string
	claudeModel     string
	geminiProject   string
	geminiLocation  string
	geminiModel     string
	embeddingModel  string
	embeddingDim    int64
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db",
			Aliases:     []string{"d"},
			Usage:       "Path to the SQLite database file",
			Value:       "memoria.db",
			Sources:     cli.EnvVars("MEMORIA_DB"),
			Destination: &cfg.dbPath,
		},
		&cli.StringFlag{
			Name:        "vector-dir",
			Usage:       "Directory for the persistent vector store (in-memory if empty)",
			Sources:     cli.EnvVars("MEMORIA_VECTOR_DIR"),
			Destination: &cfg.vectorDir,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("MEMORIA_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("MEMORIA_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm",
			Usage:       "LLM provider for extraction (gemini or claude)",
			Value:       "gemini",
			Sources:     cli.EnvVars("MEMORIA_LLM"),
			Destination: &cfg.llmProvider,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "claude-model",
			Usage:       "Claude model for extraction",
			Sources:     cli.EnvVars("MEMORIA_CLAUDE_MODEL"),
			Destination: &cfg.claudeModel,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model for extraction",
			Sources:     cli.EnvVars("MEMORIA_GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Gemini model for embeddings",
			Sources:     cli.EnvVars("MEMORIA_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Usage:       "Embedding vector dimension",
			Value:       adapter.EmbeddingDimension,
			Sources:     cli.EnvVars("MEMORIA_EMBEDDING_DIMENSION"),
			Destination: &cfg.embeddingDim,
		},
	}
}

// setupLogger installs the process-wide logger from the config
func (cfg *config) setupLogger() {
	if cfg.logFormat == "json" {
		logging.SetDefault(logging.NewJSON(cfg.logLevel, os.Stderr))
		return
	}
	logging.SetDefault(logging.New(cfg.logLevel, os.Stderr))
}

// openDB opens the SQLite database
func (cfg *config) openDB() (*repository.DB, error) {
	if cfg.dbPath == "" {
		return nil, goerr.New("db path is required")
	}

	db, err := repository.Open(cfg.dbPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database")
	}
	return db, nil
}

// newVectorStore creates the vector store, persistent when vector-dir
// is set
func (cfg *config) newVectorStore() (adapter.VectorStore, error) {
	if cfg.vectorDir == "" {
		return adapter.NewChromem(), nil
	}

	store, err := adapter.NewPersistentChromem(cfg.vectorDir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open vector store")
	}
	return store, nil
}

// newGemini creates the Gemini adapter, used for embeddings and
// optionally for extraction
func (cfg *config) newGemini(ctx context.Context) (*adapter.GeminiClient, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	var opts []adapter.GeminiOption
	if cfg.geminiModel != "" {
		opts = append(opts, adapter.WithGenerativeModel(cfg.geminiModel))
	}
	if cfg.embeddingModel != "" {
		opts = append(opts, adapter.WithEmbeddingModel(cfg.embeddingModel))
	}
	if cfg.embeddingDim > 0 {
		opts = append(opts, adapter.WithEmbeddingDimension(int(cfg.embeddingDim)))
	}

	client, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return client, nil
}

// newLLM selects the extraction LLM by provider
func (cfg *config) newLLM(ctx context.Context, gemini *adapter.GeminiClient) (adapter.LLM, error) {
	switch cfg.llmProvider {
	case "gemini", "":
		return gemini, nil

	case "claude":
		if cfg.anthropicAPIKey == "" {
			return nil, goerr.New("anthropic-api-key is required")
		}
		var opts []adapter.ClaudeOption
		if cfg.claudeModel != "" {
			opts = append(opts, adapter.WithClaudeModel(cfg.claudeModel))
		}
		return adapter.NewClaude(cfg.anthropicAPIKey, opts...), nil

	default:
		return nil, goerr.New("unknown llm provider", goerr.V("provider", cfg.llmProvider))
	}
}

// newCoreOrchestrator wires the orchestrator without extraction
// services. Commands that never touch the LLM use this so they work
// without API credentials.
func (cfg *config) newCoreOrchestrator() (*memory.Orchestrator, *repository.DB, error) {
	cfg.setupLogger()

	db, err := cfg.openDB()
	if err != nil {
		return nil, nil, err
	}

	vectors, err := cfg.newVectorStore()
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	orch := memory.New(memory.Deps{
		Factual:    repository.NewFactual(db),
		Episodic:   repository.NewEpisodic(db),
		Procedural: repository.NewProcedural(db),
		Semantic:   repository.NewSemantic(db),
		Working:    repository.NewWorking(db),
		Session:    repository.NewSession(db),
		Vectors:    vectors,
		Bus:        eventbus.NewInProc(),
	})
	return orch, db, nil
}

// newOrchestrator wires the full orchestrator including the four
// extraction services
func (cfg *config) newOrchestrator(ctx context.Context) (*memory.Orchestrator, *repository.DB, error) {
	cfg.setupLogger()

	db, err := cfg.openDB()
	if err != nil {
		return nil, nil, err
	}

	vectors, err := cfg.newVectorStore()
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	llm, err := cfg.newLLM(ctx, gemini)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	factual := repository.NewFactual(db)
	episodic := repository.NewEpisodic(db)
	procedural := repository.NewProcedural(db)
	semantic := repository.NewSemantic(db)

	orch := memory.New(memory.Deps{
		Factual:    factual,
		Episodic:   episodic,
		Procedural: procedural,
		Semantic:   semantic,
		Working:    repository.NewWorking(db),
		Session:    repository.NewSession(db),

		FactualExtractor:    extract.NewFactual(llm, gemini, vectors, factual),
		EpisodicExtractor:   extract.NewEpisodic(llm, gemini, vectors, episodic),
		ProceduralExtractor: extract.NewProcedural(llm, gemini, vectors, procedural),
		SemanticExtractor:   extract.NewSemantic(llm, gemini, vectors, semantic),

		Vectors: vectors,
		Bus:     eventbus.NewInProc(),
	})
	return orch, db, nil
}
