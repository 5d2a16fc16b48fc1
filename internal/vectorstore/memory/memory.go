package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"ragqa/internal/domain"
)

// Snapshot is the committed contents of a Storage.
type Snapshot struct {
	Dimension int
	Sources   []string
	Chunks    []domain.Chunk
}

// Storage is a simple in-memory vector store using brute-force cosine similarity.
// Writes go to a staging area and become visible to Search on Commit.
type Storage struct {
	mu        sync.RWMutex
	committed *Snapshot
	staged    *Snapshot
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Exists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed != nil && len(s.committed.Chunks) > 0, nil
}

func (s *Storage) Sources(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.committed == nil {
		return nil, nil
	}
	return slices.Clone(s.committed.Sources), nil
}

func (s *Storage) Init(ctx context.Context, dimension int, sources []string) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = &Snapshot{Dimension: dimension, Sources: slices.Clone(sources)}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged == nil {
		return errors.New("upsert before init")
	}
	for _, ch := range chunks {
		if len(ch.Embedding) != s.staged.Dimension {
			return fmt.Errorf("chunk %s: vector dimension %d, want %d", ch.ID, len(ch.Embedding), s.staged.Dimension)
		}
	}
	s.staged.Chunks = append(s.staged.Chunks, chunks...)
	return nil
}

func (s *Storage) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged == nil {
		return errors.New("commit before init")
	}
	s.committed = s.staged
	s.staged = nil
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.committed == nil || len(s.committed.Chunks) == 0 || topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	if len(vector) != s.committed.Dimension {
		return nil, fmt.Errorf("query vector dimension %d, index has %d", len(vector), s.committed.Dimension)
	}
	chunks := s.committed.Chunks
	scores := make([]float64, len(chunks))
	for i := range chunks {
		scores[i] = cosine(chunks[i].Embedding, vector)
	}
	idxs := argsortDesc(scores)
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for _, j := range idxs[:topK] {
		results = append(results, domain.SearchResult{Chunk: chunks[j], Score: scores[j]})
	}
	return results, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.committed == nil {
		return 0, nil
	}
	return len(s.committed.Chunks), nil
}

func (s *Storage) Close() error { return nil }

// Snapshot returns the committed contents, or nil when nothing was committed.
// The chunk slice is shared and must not be modified.
func (s *Storage) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed
}

// Load replaces the committed contents, dropping any staged build.
func (s *Storage) Load(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = snap
	s.staged = nil
}

// Abort drops a staged build, leaving committed contents untouched.
func (s *Storage) Abort(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = nil
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// argsortDesc orders indexes by descending score; ties keep insertion order.
func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	slices.SortStableFunc(idxs, func(a, b int) int {
		switch {
		case vals[a] > vals[b]:
			return -1
		case vals[a] < vals[b]:
			return 1
		}
		return 0
	})
	return idxs
}
