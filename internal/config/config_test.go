package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "baseball-chroma", cfg.Index.Collection)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 500, cfg.Chunker.MaxTokens)
	assert.Equal(t, float32(0), cfg.Completion.Temperature)
	assert.Equal(t, 1, cfg.Pipeline.MaxRewrites)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, DefaultRefusalMessage, cfg.Answer.RefusalMessage)
}

func TestLoadRequiresAPIKeyForOpenAI(t *testing.T) {
	t.Setenv("RAG_TEST_MISSING_KEY", "")
	path := writeConfig(t, `
openai:
  api_key_env: RAG_TEST_MISSING_KEY
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RAG_TEST_MISSING_KEY")
}

func TestHashingEmbedderStillNeedsKeyForCompletion(t *testing.T) {
	t.Setenv("RAG_TEST_MISSING_KEY", "")
	path := writeConfig(t, `
openai:
  api_key_env: RAG_TEST_MISSING_KEY
embedder:
  type: hashing
completion:
  type: openai
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.OpenAI.APIKey = "k"
	require.NoError(t, cfg.Validate())

	cfg.Pipeline.MaxRewrites = 5
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.OpenAI.APIKey = "k"
	cfg.Index.Type = "chroma"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.OpenAI.APIKey = "k"
	cfg.Index.Type = "qdrant"
	assert.Error(t, cfg.Validate())
	cfg.Index.Qdrant.URL = "http://localhost:6333"
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.OpenAI.APIKey = "k"
	cfg.Cache.Type = "redis"
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTripKeepsSecretsOut(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-secret")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.OpenAI.APIKey = "sk-secret"
	cfg.Retrieval.TopK = 5
	require.NoError(t, Save(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Retrieval.TopK)
	assert.Equal(t, "sk-secret", loaded.OpenAI.APIKey)
}
