package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSameSources(t *testing.T) {
	assert.True(t, SameSources([]string{"b", "a"}, []string{"a", "b"}))
	assert.True(t, SameSources(nil, []string{}))
	assert.False(t, SameSources([]string{"a"}, []string{"a", "b"}))
	assert.False(t, SameSources([]string{"a", "c"}, []string{"a", "b"}))
}
