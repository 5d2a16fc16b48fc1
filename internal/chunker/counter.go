package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Counter measures text length in model tokens.
type Counter interface {
	Count(text string) int
}

// WordCounter approximates tokens by whitespace-separated words. It needs no
// vocabulary files, which makes it the choice for offline runs.
type WordCounter struct{}

func (WordCounter) Count(text string) int { return len(strings.Fields(text)) }

// TiktokenCounter counts tokens with the BPE encoding of an OpenAI model.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter resolves the encoding used by model. Unknown models fall back to
// cl100k_base.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load tiktoken encoding: %w", err)
		}
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
