package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ragqa/internal/chunker"
	"ragqa/internal/config"
	"ragqa/internal/domain"
	"ragqa/internal/embedding/cache"
	"ragqa/internal/embedding/hashing"
	embopenai "ragqa/internal/embedding/openai"
	"ragqa/internal/generator"
	"ragqa/internal/grader"
	"ragqa/internal/ingest"
	llmopenai "ragqa/internal/llm/openai"
	"ragqa/internal/logging"
	"ragqa/internal/metrics"
	"ragqa/internal/pipeline"
	"ragqa/internal/retriever"
	"ragqa/internal/rewriter"
	"ragqa/internal/source"
	"ragqa/internal/vectorstore"
	"ragqa/internal/vectorstore/local"
	"ragqa/internal/vectorstore/memory"
	"ragqa/internal/vectorstore/qdrant"
)

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// FromConfig assembles every component selected by cfg. reg may be nil to disable metrics.
func FromConfig(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, reg prometheus.Registerer) (*RAG, error) {
	logger = logging.OrNop(logger)
	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}
	var closers []io.Closer
	fail := func(err error) (*RAG, error) {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}

	emb, err := newEmbedder(ctx, cfg, logger, &closers)
	if err != nil {
		return fail(err)
	}

	completer, err := llmopenai.NewClient(llmopenai.Config{
		BaseURL:    cfg.OpenAI.BaseURL,
		APIKey:     cfg.OpenAI.APIKey,
		Model:      cfg.Completion.Model,
		Timeout:    secs(cfg.Completion.TimeoutSecs),
		MaxRetries: cfg.Completion.MaxRetries,
	})
	if err != nil {
		return fail(err)
	}

	var counter chunker.Counter
	switch cfg.Chunker.Type {
	case "tiktoken", "":
		tc, err := chunker.NewTiktokenCounter(cfg.Chunker.Model)
		if err != nil {
			return fail(fmt.Errorf("token counter: %w", err))
		}
		counter = tc
	case "words":
		counter = chunker.WordCounter{}
	default:
		return fail(fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type))
	}
	splitter := chunker.NewTokenSplitter(cfg.Chunker.MaxTokens, counter)

	store, err := newStore(cfg, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, store)

	fetcher := source.Router{
		HTTP: source.NewHTTPFetcher(nil, cfg.Ingest.UserAgent, secs(cfg.Ingest.FetchTimeoutSecs)),
		File: source.FileFetcher{},
	}
	batch := cfg.Embedder.OpenAI.BatchSize
	in := ingest.New(fetcher, splitter, emb, store, ingest.Config{Concurrency: cfg.Ingest.Concurrency, BatchSize: batch}, m, logger)

	var rw pipeline.Rewriter
	switch cfg.Pipeline.Rewriter {
	case "keyword", "":
		rw = rewriter.NewKeywordRewriter()
	case "llm":
		rw = rewriter.NewLLMRewriter(completer)
	default:
		return fail(fmt.Errorf("unknown rewriter: %s", cfg.Pipeline.Rewriter))
	}

	gen, err := generator.New(completer, generator.Config{
		SystemPrompt:   cfg.Answer.SystemPrompt,
		RefusalMessage: cfg.Answer.RefusalMessage,
		Temperature:    cfg.Completion.Temperature,
	}, logger)
	if err != nil {
		return fail(err)
	}

	p, err := pipeline.New(
		retriever.New(emb, store, cfg.Retrieval.TopK, cfg.Retrieval.MinScore, logger),
		grader.EmptinessGrader{},
		rw,
		gen,
		pipeline.Config{TopK: cfg.Retrieval.TopK, MaxRewrites: cfg.Pipeline.MaxRewrites},
		m, logger,
	)
	if err != nil {
		return fail(err)
	}
	return New(in, p, cfg.Ingest.Sources, logger, closers...), nil
}

func newEmbedder(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, closers *[]io.Closer) (domain.Embedder, error) {
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "hashing":
		emb = hashing.NewEmbedder(cfg.Embedder.Hashing.Dimension)
	case "openai", "":
		oc := cfg.Embedder.OpenAI
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKey:     cfg.OpenAI.APIKey,
			Model:      oc.Model,
			Timeout:    secs(oc.TimeoutSecs),
			BatchSize:  oc.BatchSize,
			MaxRetries: oc.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	if cfg.Cache.Type != "redis" {
		return emb, nil
	}
	rc := cfg.Cache.Redis
	rs := cache.NewRedisStore(cache.RedisConfig{Addr: rc.Addr, Password: rc.Password, DB: rc.DB, TTL: secs(rc.TTLSecs)})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		logger.Warn("embedding cache unavailable, continuing without it", zap.String("addr", rc.Addr), zap.Error(err))
		_ = rs.Close()
		return emb, nil
	}
	*closers = append(*closers, rs)
	return cache.NewEmbedder(emb, rs, logger), nil
}

func newStore(cfg *config.AppConfig, logger *zap.Logger) (vectorstore.Storage, error) {
	switch cfg.Index.Type {
	case "local", "":
		return local.Open(local.Config{
			Dir:         cfg.Index.Dir,
			Collection:  cfg.Index.Collection,
			LockTimeout: secs(cfg.Index.LockTimeoutSecs),
		}, logger)
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant":
		q := cfg.Index.Qdrant
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: cfg.Index.Collection,
			Timeout:    secs(q.TimeoutSecs),
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Index.Type)
	}
}
