package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ragqa/internal/chunker"
	"ragqa/internal/domain"
	"ragqa/internal/embedding/hashing"
	"ragqa/internal/vectorstore"
	"ragqa/internal/vectorstore/local"
	"ragqa/internal/vectorstore/memory"
)

type mapFetcher map[string]string

func (m mapFetcher) Fetch(ctx context.Context, loc string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	content, ok := m[loc]
	if !ok {
		return domain.Document{}, errors.New("connection refused")
	}
	return domain.Document{ID: loc, Location: loc, Content: content}, nil
}

const rules = "경기 방식: 9이닝, 각 이닝은 공수 교대로 진행\n\n각 팀은 세 번의 아웃을 당하면 공수를 바꾼다."

func newIngestor(t *testing.T, fetcher mapFetcher, logger *zap.Logger) (*Ingestor, *memory.Storage) {
	t.Helper()
	store := memory.NewStorage()
	in := New(fetcher, chunker.NewTokenSplitter(8, chunker.WordCounter{}), hashing.NewEmbedder(128), store,
		Config{Concurrency: 2, BatchSize: 2}, nil, logger)
	return in, store
}

func contents(t *testing.T, store *memory.Storage) []string {
	t.Helper()
	snap := store.Snapshot()
	require.NotNil(t, snap)
	out := make([]string, len(snap.Chunks))
	for i, ch := range snap.Chunks {
		out[i] = ch.Content
	}
	return out
}

func TestBuildIndexesAllChunks(t *testing.T) {
	in, store := newIngestor(t, mapFetcher{"a": rules, "b": "투수는 공을 던진다"}, nil)
	report, err := in.Build(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Documents)
	assert.Empty(t, report.Failed)
	assert.False(t, report.Skipped)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Chunks, n)

	snap := store.Snapshot()
	ids := map[string]bool{}
	for _, ch := range snap.Chunks {
		assert.NotEmpty(t, ch.ID)
		assert.False(t, ids[ch.ID], "duplicate id %s", ch.ID)
		ids[ch.ID] = true
		assert.Len(t, ch.Embedding, 128)
		assert.LessOrEqual(t, ch.Tokens, 8)
	}
	// chunks keep source order
	assert.Equal(t, "a", snap.Chunks[0].SourceID)
	assert.Equal(t, "b", snap.Chunks[len(snap.Chunks)-1].SourceID)
	assert.Equal(t, []string{"a", "b"}, snap.Sources)
}

func TestBuildIsIdempotent(t *testing.T) {
	in, store := newIngestor(t, mapFetcher{"a": rules}, nil)
	ctx := context.Background()
	_, err := in.Build(ctx, []string{"a"})
	require.NoError(t, err)
	first := contents(t, store)

	_, err = in.Build(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, first, contents(t, store))
}

func TestBuildRecordsFailedSource(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	in, store := newIngestor(t, mapFetcher{"good": rules}, zap.New(core))

	report, err := in.Build(context.Background(), []string{"bad", "good"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "bad", report.Failed[0].Source)
	assert.ErrorContains(t, report.Failed[0], "connection refused")

	n, _ := store.Count(context.Background())
	assert.Positive(t, n)
	skipped := logs.FilterMessage("source skipped").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, "bad", skipped[0].ContextMap()["source"])
}

func TestBuildWithNoSurvivingSource(t *testing.T) {
	in, store := newIngestor(t, mapFetcher{}, nil)
	report, err := in.Build(context.Background(), []string{"x", "y"})
	assert.ErrorIs(t, err, ErrNoDocuments)
	assert.Len(t, report.Failed, 2)
	ok, _ := store.Exists(context.Background())
	assert.False(t, ok)
}

func TestBuildHonoursCancellation(t *testing.T) {
	in, _ := newIngestor(t, mapFetcher{"a": rules}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := in.Build(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnsureKeepsExistingIndex(t *testing.T) {
	fetcher := mapFetcher{"a": rules, "b": "투수는 공을 던진다"}
	core, logs := observer.New(zap.WarnLevel)
	in, store := newIngestor(t, fetcher, zap.New(core))
	ctx := context.Background()

	report, err := in.Ensure(ctx, []string{"a"}, false)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	built := contents(t, store)

	report, err = in.Ensure(ctx, []string{"a"}, false)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, len(built), report.Chunks)
	assert.Zero(t, logs.Len())

	report, err = in.Ensure(ctx, []string{"a", "b"}, false)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, built, contents(t, store))
	assert.Equal(t, 1, logs.FilterMessageSnippet("sources differ").Len())

	report, err = in.Ensure(ctx, []string{"a", "b"}, true)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Greater(t, len(contents(t, store)), len(built))
}

func TestEnsureWithoutIndexOrSources(t *testing.T) {
	in, _ := newIngestor(t, mapFetcher{}, nil)
	_, err := in.Ensure(context.Background(), nil, false)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

type countingFetcher struct {
	docs  mapFetcher
	calls atomic.Int32
}

func (f *countingFetcher) Fetch(ctx context.Context, loc string) (domain.Document, error) {
	f.calls.Add(1)
	return f.docs.Fetch(ctx, loc)
}

func TestEnsureReusesIndexBuiltByAnotherHandle(t *testing.T) {
	cfg := local.Config{Dir: t.TempDir(), Collection: "c", LockTimeout: 200 * time.Millisecond}
	first, err := local.Open(cfg, nil)
	require.NoError(t, err)
	defer first.Close()
	// opened before anything is built, so its loaded snapshot is empty
	second, err := local.Open(cfg, nil)
	require.NoError(t, err)
	defer second.Close()

	fetcher := &countingFetcher{docs: mapFetcher{"a": rules}}
	ingestor := func(store vectorstore.Storage) *Ingestor {
		return New(fetcher, chunker.NewTokenSplitter(8, chunker.WordCounter{}), hashing.NewEmbedder(128), store,
			Config{}, nil, nil)
	}
	ctx := context.Background()

	built, err := ingestor(first).Ensure(ctx, []string{"a"}, false)
	require.NoError(t, err)
	assert.False(t, built.Skipped)

	reused, err := ingestor(second).Ensure(ctx, []string{"a"}, false)
	require.NoError(t, err)
	assert.True(t, reused.Skipped)
	assert.Equal(t, built.Chunks, reused.Chunks)
	assert.EqualValues(t, 1, fetcher.calls.Load())

	// the lock is released after skipping
	require.NoError(t, first.Init(ctx, 128, []string{"a"}))
	require.NoError(t, first.Abort(ctx))
}

func TestEnsureReleasesLockWhenBuildFails(t *testing.T) {
	cfg := local.Config{Dir: t.TempDir(), Collection: "c", LockTimeout: 200 * time.Millisecond}
	store, err := local.Open(cfg, nil)
	require.NoError(t, err)
	defer store.Close()

	in := New(mapFetcher{}, chunker.NewTokenSplitter(8, chunker.WordCounter{}), hashing.NewEmbedder(128), store,
		Config{}, nil, nil)
	_, err = in.Ensure(context.Background(), []string{"missing"}, false)
	require.ErrorIs(t, err, ErrNoDocuments)

	other, err := local.Open(cfg, nil)
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, other.LockBuild(context.Background()))
	assert.NoError(t, other.UnlockBuild())
}
