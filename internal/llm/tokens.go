package llm

import (
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts prompt tokens with the tiktoken encoding of a model.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter returns a counter for model, falling back to cl100k_base
// for models tiktoken does not know.
func NewCounter(model string) *Counter {
	codec, err := tokenizer.ForModel(tokenizer.Model(strings.ToLower(model)))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return &Counter{}
		}
	}
	return &Counter{codec: codec}
}

// Count returns the number of tokens in text. Without a codec it estimates
// four bytes per token.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil {
		return (len(text) + 3) / 4
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(ids)
}
