package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ragqa/internal/config"
	"ragqa/internal/domain"
	"ragqa/internal/ingest"
)

// chatServer answers every chat completion with the last line of the system prompt.
func chatServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		lines := strings.Split(req.Messages[0].Content, "\n")
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "답: " + lines[len(lines)-1]},
				"finish_reason": "stop",
			}},
		}))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func offlineConfig(t *testing.T, baseURL string, sources ...string) *config.AppConfig {
	cfg := config.Default()
	cfg.OpenAI.BaseURL = baseURL
	cfg.OpenAI.APIKey = "sk-test"
	cfg.Embedder.Type = "hashing"
	cfg.Embedder.Hashing.Dimension = 512
	cfg.Chunker.Type = "words"
	cfg.Index.Dir = filepath.Join(t.TempDir(), "chroma")
	cfg.Ingest.Sources = sources
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestFromConfigEndToEnd(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, &calls)
	doc := filepath.Join(t.TempDir(), "rules.txt")
	require.NoError(t, os.WriteFile(doc, []byte("경기 방식: 9이닝, 각 이닝은 공수 교대로 진행"), 0o644))
	cfg := offlineConfig(t, srv.URL+"/v1", doc, filepath.Join(filepath.Dir(doc), "missing.txt"))
	ctx := context.Background()

	rag, err := FromConfig(ctx, cfg, zaptest.NewLogger(t), prometheus.NewRegistry())
	require.NoError(t, err)
	report, err := rag.Open(ctx, false)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 1, report.Chunks)
	require.Len(t, report.Failed, 1)

	answer, err := rag.AskQuestion(ctx, "야구 경기는 몇 이닝인가요?")
	require.NoError(t, err)
	assert.Contains(t, answer, "9")
	assert.Equal(t, int32(1), calls.Load())
	require.NoError(t, rag.Close())

	// a second process reuses the persisted index
	again, err := FromConfig(ctx, cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	defer again.Close()
	report, err = again.Open(ctx, false)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, 1, report.Chunks)

	report, err = again.Ingest(ctx)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
}

func TestOpenWithoutSourcesOrIndex(t *testing.T) {
	var calls atomic.Int32
	cfg := offlineConfig(t, chatServer(t, &calls).URL+"/v1")
	rag, err := FromConfig(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	defer rag.Close()
	_, err = rag.Open(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestFromConfigRejectsUnknownBackends(t *testing.T) {
	cfg := offlineConfig(t, "http://localhost/v1")
	cfg.Index.Type = "chroma"
	_, err := FromConfig(context.Background(), cfg, nil, nil)
	assert.Error(t, err)
}

type mockIndexer struct{ mock.Mock }

func (m *mockIndexer) Ensure(ctx context.Context, locations []string, force bool) (ingest.Report, error) {
	args := m.Called(ctx, locations, force)
	return args.Get(0).(ingest.Report), args.Error(1)
}

func (m *mockIndexer) Build(ctx context.Context, locations []string) (ingest.Report, error) {
	args := m.Called(ctx, locations)
	return args.Get(0).(ingest.Report), args.Error(1)
}

type answerFunc func(ctx context.Context, q string) (string, error)

func (f answerFunc) AskQuestion(ctx context.Context, q string) (string, error) { return f(ctx, q) }

func TestOpenPassesSourcesAndForce(t *testing.T) {
	idx := &mockIndexer{}
	idx.On("Ensure", mock.Anything, []string{"a", "b"}, true).Return(ingest.Report{Chunks: 4}, nil)
	rag := New(idx, answerFunc(func(context.Context, string) (string, error) { return "ok", nil }), []string{"a", "b"}, nil)

	report, err := rag.Open(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Chunks)
	out, err := rag.AskQuestion(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	idx.AssertExpectations(t)
}
