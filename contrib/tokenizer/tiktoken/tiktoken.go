// Package tiktoken counts tokens with the BPE encodings used by OpenAI models.
package tiktoken

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/sweetpotato0/studybuddy/history"
)

// DefaultEncoding is used when a model name is not recognised.
const DefaultEncoding = "cl100k_base"

// Tokenizer implements history.Counter.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

var _ history.Counter = (*Tokenizer)(nil)

// New resolves the encoding for model, falling back to treating model as an
// encoding name and then to DefaultEncoding.
func New(model string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(model)
	}
	if err != nil {
		enc, err = tiktoken.GetEncoding(DefaultEncoding)
	}
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding for %s: %w", model, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// Encode returns the token ids of text.
func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	return len(t.Encode(text))
}
