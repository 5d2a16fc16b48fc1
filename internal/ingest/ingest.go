// Package ingest builds the vector index from knowledge sources.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragqa/internal/domain"
	"ragqa/internal/logging"
	"ragqa/internal/metrics"
	"ragqa/internal/source"
	"ragqa/internal/vectorstore"
)

// ErrNoDocuments means every source failed or was empty, so nothing was indexed.
var ErrNoDocuments = errors.New("no documents could be ingested")

// Report summarizes one Build or Ensure call.
type Report struct {
	// Sources are the locations after glob expansion.
	Sources   []string
	Documents int
	Chunks    int
	Failed    []*domain.SourceFetchError
	// Skipped is set when an existing index was kept instead of rebuilt.
	Skipped bool
}

type Config struct {
	Concurrency int
	BatchSize   int
}

type Ingestor struct {
	fetcher     source.Fetcher
	splitter    domain.Chunker
	embedder    domain.Embedder
	store       vectorstore.Storage
	concurrency int
	batchSize   int
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func New(fetcher source.Fetcher, splitter domain.Chunker, embedder domain.Embedder, store vectorstore.Storage,
	cfg Config, m *metrics.Metrics, logger *zap.Logger) *Ingestor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	logger = logging.OrNop(logger)
	return &Ingestor{
		fetcher:     fetcher,
		splitter:    splitter,
		embedder:    embedder,
		store:       store,
		concurrency: cfg.Concurrency,
		batchSize:   cfg.BatchSize,
		metrics:     m,
		logger:      logger.Named("ingest"),
	}
}

// Ensure keeps an existing index and builds one otherwise. With force an existing
// index is rebuilt from locations. Stores implementing vectorstore.BuildLocker are
// locked before the existence check, so concurrent hosts build at most once.
func (in *Ingestor) Ensure(ctx context.Context, locations []string, force bool) (Report, error) {
	if l, ok := in.store.(vectorstore.BuildLocker); ok {
		if err := l.LockBuild(ctx); err != nil {
			return Report{}, fmt.Errorf("lock index: %w", err)
		}
		defer func() {
			if err := l.UnlockBuild(); err != nil {
				in.logger.Warn("release index lock", zap.Error(err))
			}
		}()
	}
	exists, err := in.store.Exists(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("check index: %w", err)
	}
	if len(locations) == 0 {
		if !exists {
			return Report{}, fmt.Errorf("%w: no sources configured", domain.ErrIndexUnavailable)
		}
		if force {
			in.logger.Warn("no sources configured, keeping existing index")
		}
		return in.skipped(ctx)
	}
	if exists && !force {
		stored, err := in.store.Sources(ctx)
		if err != nil {
			return Report{}, fmt.Errorf("read index sources: %w", err)
		}
		if !vectorstore.SameSources(stored, locations) {
			in.logger.Warn("configured sources differ from the indexed ones, rebuild with force to apply",
				zap.Strings("indexed", stored), zap.Strings("configured", locations))
		}
		return in.skipped(ctx)
	}
	return in.Build(ctx, locations)
}

func (in *Ingestor) skipped(ctx context.Context) (Report, error) {
	n, err := in.store.Count(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("count index: %w", err)
	}
	in.logger.Info("using existing index", zap.Int("chunks", n))
	return Report{Chunks: n, Skipped: true}, nil
}

// Build fetches, splits and embeds every source and replaces the index contents.
// Failed sources are recorded in the report and do not stop the build.
func (in *Ingestor) Build(ctx context.Context, locations []string) (Report, error) {
	expanded, err := source.Expand(locations)
	if err != nil {
		return Report{}, err
	}
	report := Report{Sources: expanded}

	docs, failed, err := in.fetchAll(ctx, expanded)
	if err != nil {
		return report, err
	}
	report.Failed = failed
	report.Documents = len(docs)
	for _, f := range failed {
		in.metrics.IncSourceFailures()
		in.logger.Warn("source skipped", zap.String("source", f.Source), zap.Error(f.Err))
	}

	var chunks []domain.Chunk
	for _, d := range docs {
		for _, ch := range in.splitter.Split(d) {
			ch.ID = uuid.NewString()
			chunks = append(chunks, ch)
		}
	}
	if len(chunks) == 0 {
		return report, ErrNoDocuments
	}
	if err := in.embed(ctx, chunks); err != nil {
		return report, err
	}
	if err := in.write(ctx, locations, chunks); err != nil {
		return report, err
	}
	report.Chunks = len(chunks)
	in.metrics.AddIngestedChunks(len(chunks))
	in.logger.Info("index built",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("failed_sources", len(report.Failed)))
	return report, nil
}

// fetchAll reads sources concurrently and returns documents in source order.
func (in *Ingestor) fetchAll(ctx context.Context, locations []string) ([]domain.Document, []*domain.SourceFetchError, error) {
	docs := make([]*domain.Document, len(locations))
	errs := make([]*domain.SourceFetchError, len(locations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for i, loc := range locations {
		g.Go(func() error {
			doc, err := in.fetcher.Fetch(gctx, loc)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				errs[i] = &domain.SourceFetchError{Source: loc, Err: err}
				return nil
			}
			in.logger.Debug("source fetched", zap.String("source", loc), zap.Int("bytes", len(doc.Content)))
			docs[i] = &doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var outDocs []domain.Document
	var outErrs []*domain.SourceFetchError
	for i := range locations {
		switch {
		case docs[i] != nil:
			outDocs = append(outDocs, *docs[i])
		case errs[i] != nil:
			outErrs = append(outErrs, errs[i])
		}
	}
	return outDocs, outErrs, nil
}

func (in *Ingestor) embed(ctx context.Context, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += in.batchSize {
		end := min(start+in.batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Content)
		}
		vecs, err := in.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("embed chunks: got %d vectors for %d texts", len(vecs), len(texts))
		}
		for i, v := range vecs {
			chunks[start+i].Embedding = v
		}
		in.logger.Debug("chunks embedded", zap.Int("done", end), zap.Int("total", len(chunks)))
	}
	return nil
}

// write replaces the index contents from a single goroutine.
func (in *Ingestor) write(ctx context.Context, locations []string, chunks []domain.Chunk) (err error) {
	dim := in.embedder.Dimension()
	if dim == 0 {
		dim = len(chunks[0].Embedding)
	}
	if err := in.store.Init(ctx, dim, locations); err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer func() {
		if err != nil {
			if abortErr := in.store.Abort(context.WithoutCancel(ctx)); abortErr != nil {
				in.logger.Warn("abort index build", zap.Error(abortErr))
			}
		}
	}()
	for start := 0; start < len(chunks); start += in.batchSize {
		end := min(start+in.batchSize, len(chunks))
		if err := in.store.Upsert(ctx, chunks[start:end]); err != nil {
			return fmt.Errorf("write index: %w", err)
		}
	}
	if err := in.store.Commit(ctx); err != nil {
		return fmt.Errorf("commit index: %w", err)
	}
	return nil
}
