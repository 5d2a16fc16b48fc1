// Package service is the caller-facing facade over ingestion and question answering.
package service

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"ragqa/internal/ingest"
	"ragqa/internal/logging"
)

// Indexer builds or loads the knowledge index.
type Indexer interface {
	Ensure(ctx context.Context, locations []string, force bool) (ingest.Report, error)
	Build(ctx context.Context, locations []string) (ingest.Report, error)
}

// Answerer answers a single question.
type Answerer interface {
	AskQuestion(ctx context.Context, query string) (string, error)
}

// RAG ties the configured sources, the indexer and the question pipeline together.
type RAG struct {
	indexer  Indexer
	answerer Answerer
	sources  []string
	closers  []io.Closer
	logger   *zap.Logger
}

func New(indexer Indexer, answerer Answerer, sources []string, logger *zap.Logger, closers ...io.Closer) *RAG {
	logger = logging.OrNop(logger)
	return &RAG{indexer: indexer, answerer: answerer, sources: sources, closers: closers, logger: logger.Named("rag")}
}

// Open makes sure an index exists, building it from the configured sources when missing
// or when force is set.
func (s *RAG) Open(ctx context.Context, force bool) (ingest.Report, error) {
	report, err := s.indexer.Ensure(ctx, s.sources, force)
	if err != nil {
		return report, err
	}
	s.logReport(report)
	return report, nil
}

// Ingest rebuilds the index from the configured sources.
func (s *RAG) Ingest(ctx context.Context) (ingest.Report, error) {
	report, err := s.indexer.Build(ctx, s.sources)
	if err != nil {
		return report, err
	}
	s.logReport(report)
	return report, nil
}

// AskQuestion answers query from the index.
func (s *RAG) AskQuestion(ctx context.Context, query string) (string, error) {
	return s.answerer.AskQuestion(ctx, query)
}

// Close releases the index and cache connections.
func (s *RAG) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

func (s *RAG) logReport(r ingest.Report) {
	for _, f := range r.Failed {
		s.logger.Warn("source failed", zap.String("source", f.Source), zap.Error(f.Err))
	}
	s.logger.Info("index ready", zap.Bool("reused", r.Skipped), zap.Int("chunks", r.Chunks), zap.Int("failed_sources", len(r.Failed)))
}
