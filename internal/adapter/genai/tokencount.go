package genai

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenCounter estimates prompt token usage with a fixed BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads the cl100k_base encoding.
func NewTokenCounter() (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("op=genai.token_encoding: %w", err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count returns the token count for a prompt.
func (c *TiktokenCounter) Count(text string) (int, error) {
	return len(c.enc.Encode(text, nil, nil)), nil
}
