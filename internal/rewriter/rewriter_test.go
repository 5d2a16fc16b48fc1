package rewriter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ragqa/internal/domain"
)

func TestKeywordRewriter(t *testing.T) {
	r := NewKeywordRewriter()
	tests := []struct {
		query string
		want  string
	}{
		{"야구 경기는 몇 이닝인가요?", "야구 경기 이닝"},
		{"How many innings are in a baseball game?", "innings baseball game"},
		{"투수가 공을 던진다", "투수 공 던진다"},
		{"What is it?", "What is it?"},
		{"홈런 홈런은", "홈런"},
	}
	for _, tt := range tests {
		got, err := r.Rewrite(context.Background(), tt.query)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.query)
	}
}

func TestKeywordRewriterIsDeterministic(t *testing.T) {
	r := NewKeywordRewriter()
	a, _ := r.Rewrite(context.Background(), "연장전은 언제 끝나나요?")
	b, _ := r.Rewrite(context.Background(), "연장전은 언제 끝나나요?")
	assert.Equal(t, a, b)
	assert.Equal(t, "연장전 끝나", a)
}

func TestStripParticleKeepsShortWords(t *testing.T) {
	assert.Equal(t, "공", stripParticle("공을"))
	assert.Equal(t, "이", stripParticle("이"))
	assert.Equal(t, "9이닝", stripParticle("9이닝"))
	assert.Equal(t, "game", stripParticle("game"))
}

type mockCompleter struct{ mock.Mock }

func (m *mockCompleter) Complete(ctx context.Context, messages []domain.Message, temperature float32) (string, error) {
	args := m.Called(ctx, messages, temperature)
	return args.String(0), args.Error(1)
}

func TestLLMRewriter(t *testing.T) {
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.MatchedBy(func(msgs []domain.Message) bool {
		return len(msgs) == 2 && msgs[0].Role == domain.RoleSystem && msgs[1].Content == "몇 이닝?"
	}), float32(0)).Return(` "야구 경기 이닝 수" `, nil)

	got, err := NewLLMRewriter(c).Rewrite(context.Background(), "몇 이닝?")
	require.NoError(t, err)
	assert.Equal(t, "야구 경기 이닝 수", got)
	c.AssertExpectations(t)
}

func TestLLMRewriterFallsBackOnEmptyOutput(t *testing.T) {
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.Anything, float32(0)).Return("   ", nil)
	got, err := NewLLMRewriter(c).Rewrite(context.Background(), " 몇 이닝? ")
	require.NoError(t, err)
	assert.Equal(t, "몇 이닝?", got)
}

func TestLLMRewriterPropagatesErrors(t *testing.T) {
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.Anything, float32(0)).
		Return("", &domain.ServiceError{Service: domain.ServiceCompletion, Timeout: true})
	_, err := NewLLMRewriter(c).Rewrite(context.Background(), "q")
	assert.ErrorIs(t, err, domain.ErrTimeout)
}
