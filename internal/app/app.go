// Package app assembles the pipeline from configuration. Both the API server and
// the batch runner start here.
package app

import (
	"context"
	"errors"
	"fmt"

	"video-docs-go/internal/acquirer"
	"video-docs-go/internal/config"
	"video-docs-go/internal/extractor"
	"video-docs-go/internal/logger"
	"video-docs-go/internal/pipeline"
	"video-docs-go/internal/schema"
	"video-docs-go/internal/store"
	"video-docs-go/internal/transcription"
	"video-docs-go/internal/videometa"
)

type App struct {
	Orchestrator *pipeline.Orchestrator
	Store        store.Store
	Schemas      *schema.Store
}

// OpenStore picks the job store: Postgres when a database URL is configured,
// Supabase when its URL and key are, memory otherwise. The returned func releases it.
func OpenStore(ctx context.Context, cfg config.StoreConfig, log *logger.Logger) (store.Store, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		log.WithField("store", "postgres").Info("job store ready")
		return pg, pg.Close, nil
	case cfg.SupabaseURL != "":
		sb, err := store.NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("store", "supabase").Info("job store ready")
		return sb, func() {}, nil
	default:
		log.WithField("store", "memory").Warn("no database configured, jobs are kept in memory")
		return store.NewMemory(), func() {}, nil
	}
}

// NewCompleter builds the LLM client for the configured provider.
func NewCompleter(ctx context.Context, cfg config.LLMConfig) (extractor.Completer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return extractor.NewOpenAI(cfg.OpenAI), nil
	case config.ProviderGemini:
		g, err := extractor.NewGemini(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// New wires the orchestrator. Every snapshot goes to st first, then to sinks.
func New(ctx context.Context, cfg *config.Config, st store.Store, log *logger.Logger, sinks ...pipeline.ProgressSink) (*App, error) {
	if st == nil {
		return nil, errors.New("app: nil store")
	}
	schemas, err := schema.NewStore(nil, cfg.SchemaFile, log)
	if err != nil {
		return nil, err
	}

	completer, err := NewCompleter(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}

	ytdlp := acquirer.NewYtDlp(cfg.Acquirer, log)
	if path, err := ytdlp.Locate(); err != nil {
		log.WithError(err).Warn("yt-dlp unavailable, remote sources will fail")
	} else {
		log.WithField("path", path).Info("using yt-dlp")
	}

	router := acquirer.Router{Remote: ytdlp}
	if cfg.Acquirer.LocalRoot != "" {
		router.Local = acquirer.LocalFile{Root: cfg.Acquirer.LocalRoot}
		log.WithField("root", cfg.Acquirer.LocalRoot).Info("local sources enabled")
	}

	orch := pipeline.New(pipeline.Deps{
		Acquirer:    router,
		Transcriber: transcription.New(cfg.Transcription, log),
		Extractor:   extractor.New(completer, cfg.LLM.Provider, cfg.LLM.Retry, log),
		Titles:      videometa.NewFetcher(0),
		Sink:        append(pipeline.MultiSink{st}, sinks...),
		Schemas:     schemas.Current,
	}, cfg.Pipeline, log)

	return &App{Orchestrator: orch, Store: st, Schemas: schemas}, nil
}
