package openaiapi

import (
	"errors"
	"net/http"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragqa/internal/domain"
)

func TestClassifyErrorUsesStatus(t *testing.T) {
	err := ClassifyError(domain.ServiceCompletion, &goopenai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "rate limited"})
	var se *domain.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.True(t, domain.IsTransient(err))

	err = ClassifyError(domain.ServiceCompletion, &goopenai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"})
	assert.False(t, domain.IsTransient(err))
}

func TestStatusCodeOfRequestError(t *testing.T) {
	err := &goopenai.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("upstream")}
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
}
