package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaceholders(t *testing.T) {
	assert.Nil(t, Placeholders("no markers here"))
	assert.Equal(t, []string{"city", "unit"}, Placeholders("Weather for {{city}} in {{ unit }} ({{city}})"))
}

func TestSubstitute(t *testing.T) {
	out := Substitute("Hello {{name}}, welcome to {{place}}!", map[string]string{"name": "Ada", "place": "Berlin"})
	assert.Equal(t, "Hello Ada, welcome to Berlin!", out)

	// Unknown placeholders survive untouched.
	out = Substitute("{{known}} {{unknown}}", map[string]string{"known": "x"})
	assert.Equal(t, "x {{unknown}}", out)
}

func TestSameStringSet(t *testing.T) {
	assert.True(t, SameStringSet([]string{"a", "b"}, []string{"b", "a", "a"}))
	assert.False(t, SameStringSet([]string{"a"}, []string{"a", "b"}))
	assert.False(t, SameStringSet([]string{"a", "c"}, []string{"a", "b"}))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("ab"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}
