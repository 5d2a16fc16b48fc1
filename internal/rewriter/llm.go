package rewriter

import (
	"context"
	"strings"

	"ragqa/internal/domain"
)

const rewritePrompt = `You rewrite questions into short search queries for a knowledge base.
Keep the language of the question. Keep names, numbers and domain terms.
Reply with the query only, without quotes or explanations.`

// LLMRewriter asks the completion service for a search-friendly reformulation.
type LLMRewriter struct {
	completer domain.Completer
}

func NewLLMRewriter(completer domain.Completer) *LLMRewriter {
	return &LLMRewriter{completer: completer}
}

// Rewrite falls back to the original query when the model returns nothing.
func (r *LLMRewriter) Rewrite(ctx context.Context, query string) (string, error) {
	out, err := r.completer.Complete(ctx, []domain.Message{
		{Role: domain.RoleSystem, Content: rewritePrompt},
		{Role: domain.RoleUser, Content: query},
	}, 0)
	if err != nil {
		return "", err
	}
	out = strings.Trim(strings.TrimSpace(out), `"'`)
	if out == "" {
		return strings.TrimSpace(query), nil
	}
	return out, nil
}
