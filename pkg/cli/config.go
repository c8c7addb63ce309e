package cli

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/fabrica/pkg/adapter"
	routing "github.com/m-mizutani/fabrica/pkg/config"
	"github.com/m-mizutani/fabrica/pkg/repository"
	"github.com/m-mizutani/fabrica/pkg/service/memory"
	"github.com/m-mizutani/fabrica/pkg/service/remote"
	"github.com/m-mizutani/fabrica/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	logLevel string

	// Repository
	dbPath            string
	firestoreProject  string
	firestoreDatabase string

	// Routing
	routingPath string
	userID      string
	callTimeout time.Duration
	requireAll  bool

	// Artifacts
	outputDir string
	bucket    string

	// LLM
	geminiProject  string
	geminiLocation string
	embedDims      int64
	mockLLM        bool
	cacheMiB       int64
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("FABRICA_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "db",
			Usage:       "Path to the SQLite memory database",
			Value:       "fabrica.db",
			Sources:     cli.EnvVars("FABRICA_DB"),
			Destination: &cfg.dbPath,
		},
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Google Cloud project ID (use Firestore instead of SQLite)",
			Sources:     cli.EnvVars("FABRICA_FIRESTORE_PROJECT_ID"),
			Destination: &cfg.firestoreProject,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FABRICA_FIRESTORE_DATABASE_ID"),
			Destination: &cfg.firestoreDatabase,
		},
	}
}

// routingFlags returns flags for service routing configuration
func routingFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "routing",
			Aliases:     []string{"r"},
			Usage:       "Path to the service routing YAML file",
			Value:       "routing.yaml",
			Sources:     cli.EnvVars("FABRICA_ROUTING"),
			Destination: &cfg.routingPath,
		},
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID selecting a routing entry",
			Value:       "super-user",
			Sources:     cli.EnvVars("FABRICA_USER"),
			Destination: &cfg.userID,
		},
		&cli.DurationFlag{
			Name:        "call-timeout",
			Usage:       "Timeout of a single service call attempt",
			Value:       60 * time.Second,
			Sources:     cli.EnvVars("FABRICA_CALL_TIMEOUT"),
			Destination: &cfg.callTimeout,
		},
		&cli.BoolFlag{
			Name:        "require-all",
			Usage:       "Abort the whole pipeline when any service is unavailable (overrides routing config)",
			Sources:     cli.EnvVars("FABRICA_REQUIRE_ALL"),
			Destination: &cfg.requireAll,
		},
	}
}

// storageFlags returns flags for artifact storage configuration
func storageFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "output-dir",
			Aliases:     []string{"o"},
			Usage:       "Local directory for generated artifacts",
			Value:       "output",
			Sources:     cli.EnvVars("FABRICA_OUTPUT_DIR"),
			Destination: &cfg.outputDir,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for generated artifacts (overrides output-dir)",
			Sources:     cli.EnvVars("FABRICA_BUCKET"),
			Destination: &cfg.bucket,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
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
		&cli.IntFlag{
			Name:        "embedding-dimensions",
			Usage:       "Embedding vector size (0 uses the provider default)",
			Sources:     cli.EnvVars("FABRICA_EMBEDDING_DIMENSIONS"),
			Destination: &cfg.embedDims,
		},
		&cli.BoolFlag{
			Name:        "mock-llm",
			Usage:       "Use the deterministic offline LLM instead of Gemini",
			Sources:     cli.EnvVars("FABRICA_MOCK_LLM"),
			Destination: &cfg.mockLLM,
		},
		&cli.IntFlag{
			Name:        "llm-cache-mb",
			Usage:       "In-process LLM response cache size in MiB",
			Value:       16,
			Sources:     cli.EnvVars("FABRICA_LLM_CACHE_MB"),
			Destination: &cfg.cacheMiB,
		},
	}
}

// loggerContext installs a logger at the configured level into the context.
func (cfg *config) loggerContext(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newRepository creates the memory repository: Firestore when a project is
// configured, SQLite otherwise.
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.firestoreProject != "" {
		repo, err := repository.NewFirestore(ctx, cfg.firestoreProject, cfg.firestoreDatabase)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create firestore repository")
		}
		return repo, nil
	}

	repo, err := repository.NewSQLite(ctx, cfg.dbPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create sqlite repository")
	}
	return repo, nil
}

// newMemory creates the memory store, rebuilding the similarity index from
// the repository.
func (cfg *config) newMemory(ctx context.Context) (*memory.Store, repository.Repository, error) {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, err
	}

	store, err := memory.New(ctx, repo)
	if err != nil {
		_ = repo.Close()
		return nil, nil, goerr.Wrap(err, "failed to build memory store")
	}
	return store, repo, nil
}

// newLLM creates the LLM adapter wrapped in the response cache.
func (cfg *config) newLLM(ctx context.Context) (adapter.LLM, error) {
	var base adapter.LLM
	if cfg.mockLLM {
		base = adapter.NewMockLLM(int(cfg.embedDims))
	} else {
		if cfg.geminiProject == "" {
			return nil, goerr.New("gemini-project is required (or use --mock-llm)")
		}

		var opts []adapter.GeminiOption
		if cfg.embedDims > 0 {
			opts = append(opts, adapter.WithEmbeddingDimensions(int32(cfg.embedDims)))
		}

		gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create gemini adapter")
		}
		base = gemini
	}

	cached, err := adapter.NewCachedLLM(base, cfg.cacheMiB<<20)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create LLM cache")
	}
	return cached, nil
}

// newStorage creates the artifact storage adapter.
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.bucket != "" {
		storage, err := adapter.NewGCSStorage(ctx, cfg.bucket)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create cloud storage")
		}
		return storage, nil
	}

	storage, err := adapter.NewLocalStorage(cfg.outputDir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create local storage")
	}
	return storage, nil
}

// newClient builds the remote service client for the configured user from
// the routing file.
func (cfg *config) newClient() (*remote.Client, error) {
	routes, err := routing.Load(cfg.routingPath)
	if err != nil {
		return nil, err
	}

	endpoints, err := routes.EndpointsFor(cfg.userID)
	if err != nil {
		return nil, err
	}

	rcfg := routes.ClientConfig(cfg.userID)
	if cfg.requireAll {
		rcfg.RequireAll = true
	}

	transport := remote.NewDispatchTransport(cfg.callTimeout)
	return remote.New(cfg.userID, endpoints, transport, rcfg), nil
}
