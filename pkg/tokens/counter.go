// Package tokens provides tiktoken-based token counting for budget decisions.
package tokens

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens in text. Implementations must be safe for
// concurrent use; compaction and metrics share one instance.
type Counter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens using a tiktoken codec. Claude-style models
// tokenize similarly enough to GPT-4 that one encoding serves all backends.
type TiktokenCounter struct {
	codec tokenizer.Codec
}

// NewCounter creates a counter for the given model name. Claude-style and
// unknown models fall back to the GPT-4 encoding, which approximates their
// tokenization closely enough for budget decisions.
func NewCounter(model string) (*TiktokenCounter, error) {
	var tikModel tokenizer.Model
	switch {
	case strings.HasPrefix(model, "gpt-4o"):
		tikModel = tokenizer.GPT4o
	case strings.HasPrefix(model, "gpt-3.5"):
		tikModel = tokenizer.GPT35Turbo
	default:
		tikModel = tokenizer.GPT4
	}

	codec, err := tokenizer.ForModel(tikModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TiktokenCounter{codec: codec}, nil
}

// Count returns the number of tokens in text. On codec failure it falls
// back to the usual 4-characters-per-token estimate.
func (c *TiktokenCounter) Count(text string) int {
	if c.codec == nil {
		return estimate(text)
	}
	n, err := c.codec.Count(text)
	if err != nil {
		return estimate(text)
	}
	return n
}

// EstimateCounter is a dependency-free counter using the 4-chars-per-token
// heuristic. Deterministic, which makes it the default in tests.
type EstimateCounter struct{}

// Count returns a character-based token estimate.
func (EstimateCounter) Count(text string) int {
	return estimate(text)
}

func estimate(text string) int {
	return len(text) / 4
}
