package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragqa/internal/domain"
)

type chatRequest struct {
	Model       string           `json:"model"`
	Temperature *float64         `json:"temperature"`
	Messages    []map[string]any `json:"messages"`
}

func writeChat(t *testing.T, w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	}))
}

func TestCompleteSendsRolesAndTemperature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		if assert.NotNil(t, req.Temperature, "temperature must be sent even when zero") {
			assert.InDelta(t, 0, *req.Temperature, 1e-6)
		}
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0]["role"])
			assert.Equal(t, "user", req.Messages[1]["role"])
		}
		writeChat(t, w, "9이닝입니다")
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	out, err := c.Complete(context.Background(), []domain.Message{
		{Role: domain.RoleSystem, Content: "answer from context"},
		{Role: domain.RoleUser, Content: "몇 이닝?"},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "9이닝입니다", out)
}

func TestCompleteTimeoutIsDistinct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Timeout: 20 * time.Millisecond})
	require.NoError(t, err)
	out, err := c.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "q"}}, 0)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Empty(t, out)
}

func TestCompleteRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		writeChat(t, w, "ok")
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "sk-test", MaxRetries: 1})
	require.NoError(t, err)
	c.policy.BaseDelay = time.Millisecond
	out, err := c.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "q"}}, 0.2)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWireTemperature(t *testing.T) {
	assert.Greater(t, wireTemperature(0), float32(0))
	assert.Equal(t, float32(0.7), wireTemperature(0.7))
}
