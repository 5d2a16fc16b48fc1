package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"ragqa/internal/domain"
)

const upsertBatch = 64

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and recreates the collection on Init.
// Writes are not staged: Commit and Abort are no-ops.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	sources    []string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, url.PathEscape(s.collection), suffix)
}

func (s *Storage) Exists(ctx context.Context) (bool, error) {
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &resp)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resp.Result.PointsCount > 0, nil
}

// Sources reads the manifest stored in the payload of any point.
func (s *Storage) Sources(ctx context.Context) ([]string, error) {
	req := map[string]any{
		"limit":        1,
		"with_payload": []string{"sources"},
		"with_vector":  false,
	}
	var resp struct {
		Result struct {
			Points []struct {
				Payload struct {
					Sources []string `json:"sources"`
				} `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/scroll"), req, &resp)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(resp.Result.Points) == 0 {
		return nil, nil
	}
	return resp.Result.Points[0].Payload.Sources, nil
}

// Init drops any existing collection and creates an empty one.
func (s *Storage) Init(ctx context.Context, dimension int, sources []string) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		return err
	}
	s.dimension = dimension
	s.sources = sources
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += upsertBatch {
		end := min(start+upsertBatch, len(chunks))
		points := make([]map[string]any, 0, end-start)
		for _, ch := range chunks[start:end] {
			if len(ch.Embedding) != s.dimension {
				return fmt.Errorf("chunk %s: vector dimension %d, want %d", ch.ID, len(ch.Embedding), s.dimension)
			}
			id := ch.ID
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			points = append(points, map[string]any{
				"id":     id,
				"vector": ch.Embedding,
				"payload": map[string]any{
					"chunk_id":  ch.ID,
					"source_id": ch.SourceID,
					"sequence":  ch.Sequence,
					"tokens":    ch.Tokens,
					"text":      ch.Content,
					"sources":   s.sources,
				},
			})
		}
		body := map[string]any{"points": points}
		if _, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) Commit(ctx context.Context) error { return nil }

func (s *Storage) Abort(ctx context.Context) error { return nil }

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				ChunkID  string `json:"chunk_id"`
				SourceID string `json:"source_id"`
				Sequence int    `json:"sequence"`
				Tokens   int    `json:"tokens"`
				Text     string `json:"text"`
			} `json:"payload"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp)
	if status == http.StatusNotFound {
		return []domain.SearchResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		p := r.Payload
		results = append(results, domain.SearchResult{
			Chunk: domain.Chunk{
				ID:       p.ChunkID,
				SourceID: p.SourceID,
				Sequence: p.Sequence,
				Tokens:   p.Tokens,
				Content:  p.Text,
			},
			Score: r.Score,
		})
	}
	return results, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp)
	if status == http.StatusNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do sends a JSON request and decodes the response into out. The returned status is 0
// when no response was received.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, domain.NewServiceError(domain.ServiceVectorIndex, 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, domain.NewServiceError(domain.ServiceVectorIndex, resp.StatusCode,
			fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, bytes.TrimSpace(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, domain.NewServiceError(domain.ServiceVectorIndex, resp.StatusCode, err)
		}
	}
	return resp.StatusCode, nil
}
