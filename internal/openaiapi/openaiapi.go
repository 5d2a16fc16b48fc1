// Package openaiapi holds the client construction and error classification shared by
// the OpenAI-backed embedder and completer.
package openaiapi

import (
	"errors"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"ragqa/internal/domain"
)

// NewClient builds a go-openai client. An empty baseURL keeps the library default.
func NewClient(apiKey, baseURL string, httpClient *http.Client) *goopenai.Client {
	cc := goopenai.DefaultConfig(strings.TrimSpace(apiKey))
	if baseURL != "" {
		cc.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if httpClient != nil {
		cc.HTTPClient = httpClient
	}
	return goopenai.NewClientWithConfig(cc)
}

// ClassifyError wraps a go-openai error into a domain.ServiceError carrying the HTTP
// status, so retry and timeout handling can inspect it.
func ClassifyError(service string, err error) error {
	return domain.NewServiceError(service, StatusCode(err), err)
}

// StatusCode extracts the HTTP status carried by go-openai errors, or 0.
func StatusCode(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
