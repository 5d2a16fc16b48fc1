package domain

import (
	"context"
	"strings"
)

// Document is the raw text of one source location.
type Document struct {
	ID       string
	Location string
	Content  string
}

// Chunk is a bounded-size slice of a document stored with its embedding.
type Chunk struct {
	ID        string
	SourceID  string
	Sequence  int
	Content   string
	Tokens    int
	Embedding []float32
}

// SearchResult represents a matching chunk with a similarity score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// RetrievalResult is ordered by non-increasing score.
type RetrievalResult []SearchResult

// Context joins the chunk contents in result order.
func (r RetrievalResult) Context() string {
	parts := make([]string, 0, len(r))
	for _, res := range r {
		parts = append(parts, res.Chunk.Content)
	}
	return strings.Join(parts, "\n")
}

// Grade is the relevance grader's verdict on retrieved context.
type Grade int

const (
	GradeInsufficient Grade = iota
	GradeSufficient
)

func (g Grade) String() string {
	if g == GradeSufficient {
		return "sufficient"
	}
	return "insufficient"
}

// Role of a message sent to the completion service.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a completion request.
type Message struct {
	Role    Role
	Content string
}

// Embedder converts free text into fixed-dimension vectors.
type Embedder interface {
	Model() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer produces text from an ordered list of messages.
type Completer interface {
	Complete(ctx context.Context, messages []Message, temperature float32) (string, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Split(document Document) []Chunk
}
