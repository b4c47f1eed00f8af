package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeDropsNoiseAndPunctuation(t *testing.T) {
	tokens := tokenize("How do I fix my dishwasher? It's not draining!")

	assert.Equal(t, []string{"fix", "dishwasher", "it's", "not", "draining"}, tokens)
}

func TestTokenizeLowercases(t *testing.T) {
	tokens := tokenize("DISHWASHER Not Draining")

	assert.Equal(t, []string{"dishwasher", "not", "draining"}, tokens)
}

func TestTokenizeEmptyInput(t *testing.T) {
	assert.Empty(t, tokenize(""))
	assert.Empty(t, tokenize("the a an is"))
}
