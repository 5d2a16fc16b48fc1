// Package generator produces the final answer from retrieved context.
package generator

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"ragqa/internal/domain"
	"ragqa/internal/logging"
)

type Config struct {
	// SystemPrompt is a text/template with {{.Context}} and {{.Refusal}}.
	SystemPrompt   string
	RefusalMessage string
	Temperature    float32
}

type Generator struct {
	completer   domain.Completer
	prompt      *template.Template
	refusal     string
	temperature float32
	logger      *zap.Logger
}

func New(completer domain.Completer, cfg Config, logger *zap.Logger) (*Generator, error) {
	if strings.TrimSpace(cfg.RefusalMessage) == "" {
		return nil, fmt.Errorf("generator: refusal message is required")
	}
	tmpl, err := template.New("system").Option("missingkey=error").Parse(cfg.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("generator: parse system prompt: %w", err)
	}
	logger = logging.OrNop(logger)
	return &Generator{
		completer:   completer,
		prompt:      tmpl,
		refusal:     cfg.RefusalMessage,
		temperature: cfg.Temperature,
		logger:      logger.Named("generator"),
	}, nil
}

// Generate answers query from the retrieved passages. Blank passages return the
// refusal message without calling the model.
func (g *Generator) Generate(ctx context.Context, query, passages string) (string, error) {
	if strings.TrimSpace(passages) == "" {
		g.logger.Debug("empty context, refusing", zap.String("query", query))
		return g.refusal, nil
	}
	var system strings.Builder
	err := g.prompt.Execute(&system, struct{ Context, Refusal string }{Context: passages, Refusal: g.refusal})
	if err != nil {
		return "", fmt.Errorf("generator: render system prompt: %w", err)
	}
	out, err := g.completer.Complete(ctx, []domain.Message{
		{Role: domain.RoleSystem, Content: system.String()},
		{Role: domain.RoleUser, Content: query},
	}, g.temperature)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		g.logger.Warn("model returned an empty answer", zap.String("query", query))
		return g.refusal, nil
	}
	return out, nil
}
