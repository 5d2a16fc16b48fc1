package retriever

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"

	"ragqa/internal/domain"
	"ragqa/internal/logging"
	"ragqa/internal/vectorstore"
)

// Retriever embeds a query and returns the nearest chunks from the index.
type Retriever struct {
	embedder domain.Embedder
	store    vectorstore.Storage
	topK     int
	minScore float64
	logger   *zap.Logger
}

// New creates a retriever. topK is used when Retrieve is called with k <= 0.
// Results scoring below a positive minScore are dropped.
func New(embedder domain.Embedder, store vectorstore.Storage, topK int, minScore float64, logger *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = 3
	}
	logger = logging.OrNop(logger)
	return &Retriever{embedder: embedder, store: store, topK: topK, minScore: minScore, logger: logger.Named("retriever")}
}

// Retrieve returns at most k results in non-increasing score order. An empty index
// gives an empty result.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (domain.RetrievalResult, error) {
	if k <= 0 {
		k = r.topK
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := r.store.Search(ctx, vec, k)
	if err != nil {
		return nil, indexError(err)
	}
	slices.SortStableFunc(hits, func(a, b domain.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make(domain.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		if r.minScore > 0 && h.Score < r.minScore {
			continue
		}
		out = append(out, h)
	}
	r.logger.Debug("retrieved", zap.String("query", query), zap.Int("hits", len(hits)), zap.Int("kept", len(out)))
	return out, nil
}

func indexError(err error) error {
	var se *domain.ServiceError
	if errors.As(err, &se) || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewServiceError(domain.ServiceVectorIndex, 0, err)
	}
	return &domain.ServiceError{Service: domain.ServiceVectorIndex, Err: err}
}
