package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"ragqa/internal/domain"
	"ragqa/internal/openaiapi"
	"ragqa/internal/retry"
)

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	client    *goopenai.Client
	model     string
	dimension atomic.Int64
	timeout   time.Duration
	batchSize int
	policy    retry.Policy
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	BatchSize  int
	MaxRetries int
	HTTPClient *http.Client
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("openai embedder: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.MaxRetries + 1
	c := &Client{
		client:    openaiapi.NewClient(key, cfg.BaseURL, cfg.HTTPClient),
		model:     cfg.Model,
		timeout:   cfg.Timeout,
		batchSize: cfg.BatchSize,
		policy:    policy,
	}
	c.dimension.Store(int64(embeddingDimensions[cfg.Model]))
	return c, nil
}

// Model returns the embedding model name.
func (c *Client) Model() string { return c.model }

// Dimension returns the dimensionality of the produced embedding vectors. For models
// not in the table it is learned from the first response.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in requests of at most batchSize inputs, preserving order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("openai embedder: input %d is empty", i)
		}
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embedOnce(ctx context.Context, inputs []string) ([][]float32, error) {
	var resp goopenai.EmbeddingResponse
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		r, err := c.client.CreateEmbeddings(callCtx, goopenai.EmbeddingRequest{
			Model: goopenai.EmbeddingModel(c.model),
			Input: inputs,
		})
		if err != nil {
			return openaiapi.ClassifyError(domain.ServiceEmbedding, err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(inputs) {
		return nil, &domain.ServiceError{
			Service: domain.ServiceEmbedding,
			Err:     fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(resp.Data)),
		}
	}
	vecs := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(inputs) || len(d.Embedding) == 0 {
			return nil, &domain.ServiceError{Service: domain.ServiceEmbedding, Err: errors.New("malformed embedding in response")}
		}
		v := make([]float32, len(d.Embedding))
		copy(v, d.Embedding)
		vecs[d.Index] = v
	}
	c.dimension.CompareAndSwap(0, int64(len(vecs[0])))
	return vecs, nil
}
