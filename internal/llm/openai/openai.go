package openai

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"ragqa/internal/domain"
	"ragqa/internal/openaiapi"
	"ragqa/internal/retry"
)

// Config configures the chat completion client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// Client implements domain.Completer with the chat completions API.
type Client struct {
	client  *goopenai.Client
	model   string
	timeout time.Duration
	policy  retry.Policy
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai completer: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.GPT4oMini
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.MaxRetries + 1
	return &Client{
		client:  openaiapi.NewClient(cfg.APIKey, cfg.BaseURL, cfg.HTTPClient),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		policy:  policy,
	}, nil
}

// Complete sends messages and returns the first choice. Each attempt gets its own
// timeout; an expired one surfaces as domain.ErrTimeout.
func (c *Client) Complete(ctx context.Context, messages []domain.Message, temperature float32) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toChatMessages(messages),
		Temperature: wireTemperature(temperature),
	}
	var content string
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		resp, err := c.client.CreateChatCompletion(callCtx, req)
		if err != nil {
			return openaiapi.ClassifyError(domain.ServiceCompletion, err)
		}
		if len(resp.Choices) == 0 {
			return &domain.ServiceError{Service: domain.ServiceCompletion, Err: errors.New("no choices returned")}
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// wireTemperature works around the omitempty tag on the request field: a literal 0
// would be dropped and the server default (1) used instead.
func wireTemperature(t float32) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func toChatMessages(messages []domain.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := goopenai.ChatMessageRoleUser
		switch m.Role {
		case domain.RoleSystem:
			role = goopenai.ChatMessageRoleSystem
		case domain.RoleAssistant:
			role = goopenai.ChatMessageRoleAssistant
		}
		out[i] = goopenai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}
