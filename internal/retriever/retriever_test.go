package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ragqa/internal/domain"
	"ragqa/internal/embedding/hashing"
	"ragqa/internal/vectorstore"
	"ragqa/internal/vectorstore/memory"
)

func indexed(t *testing.T, emb domain.Embedder, texts ...string) *memory.Storage {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStorage()
	require.NoError(t, store.Init(ctx, emb.Dimension(), nil))
	for i, text := range texts {
		vec, err := emb.Embed(ctx, text)
		require.NoError(t, err)
		require.NoError(t, store.Upsert(ctx, []domain.Chunk{{ID: text, Sequence: i, Content: text, Embedding: vec}}))
	}
	require.NoError(t, store.Commit(ctx))
	return store
}

func TestRetrieveFindsRelevantChunk(t *testing.T) {
	emb := hashing.NewEmbedder(512)
	store := indexed(t, emb,
		"The pitcher throws a curveball",
		"경기 방식: 9이닝, 각 이닝은 공수 교대로 진행",
		"홈런은 담장을 넘긴 타구이다",
	)
	r := New(emb, store, 3, 0, nil)

	res, err := r.Retrieve(context.Background(), "야구 경기는 몇 이닝인가요?", 0)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "경기 방식: 9이닝, 각 이닝은 공수 교대로 진행", res[0].Chunk.Content)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}
}

func TestRetrieveRespectsKAndMinScore(t *testing.T) {
	emb := hashing.NewEmbedder(512)
	store := indexed(t, emb, "경기 방식: 9이닝, 각 이닝은 공수 교대로 진행", "The pitcher throws a curveball")

	res, err := New(emb, store, 3, 0, nil).Retrieve(context.Background(), "야구 경기는 몇 이닝인가요?", 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)

	res, err = New(emb, store, 3, 0.05, nil).Retrieve(context.Background(), "야구 경기는 몇 이닝인가요?", 0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Chunk.Content, "9이닝")
}

func TestRetrieveEmptyIndex(t *testing.T) {
	emb := hashing.NewEmbedder(64)
	res, err := New(emb, memory.NewStorage(), 3, 0, nil).Retrieve(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Equal(t, "", res.Context())
}

type mockStore struct {
	vectorstore.Storage
	mock.Mock
}

func (m *mockStore) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	args := m.Called(ctx, vector, k)
	res, _ := args.Get(0).([]domain.SearchResult)
	return res, args.Error(1)
}

func TestRetrieveSortsAndTruncatesStoreOutput(t *testing.T) {
	store := &mockStore{}
	store.On("Search", mock.Anything, mock.Anything, 2).Return([]domain.SearchResult{
		{Chunk: domain.Chunk{Content: "low"}, Score: 0.1},
		{Chunk: domain.Chunk{Content: "high"}, Score: 0.9},
		{Chunk: domain.Chunk{Content: "mid"}, Score: 0.5},
	}, nil)

	res, err := New(hashing.NewEmbedder(8), store, 2, 0, nil).Retrieve(context.Background(), "q", 0)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "high", res[0].Chunk.Content)
	assert.Equal(t, "mid", res[1].Chunk.Content)
	assert.Equal(t, "high\nmid", res.Context())
	store.AssertExpectations(t)
}

func TestRetrieveWrapsIndexFailure(t *testing.T) {
	store := &mockStore{}
	store.On("Search", mock.Anything, mock.Anything, 3).Return(nil, errors.New("disk gone"))

	_, err := New(hashing.NewEmbedder(8), store, 3, 0, nil).Retrieve(context.Background(), "q", 0)
	var se *domain.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.ServiceVectorIndex, se.Service)
}
