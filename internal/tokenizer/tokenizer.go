package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is used when a model has no registered encoding
const DefaultEncoding = "cl100k_base"

// Tokenizer converts between text and token ids
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

var loaderOnce sync.Once

// useOfflineLoader makes tiktoken read its BPE ranks from the embedded
// loader instead of downloading them.
func useOfflineLoader() {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
}

// Tiktoken wraps a BPE encoding compatible with OpenAI chat models
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named BPE encoding
func NewTiktoken(encoding string) (*Tiktoken, error) {
	useOfflineLoader()
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// ForModel picks the encoding registered for model, falling back to cl100k_base
func ForModel(model string) (*Tiktoken, error) {
	useOfflineLoader()
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return NewTiktoken(DefaultEncoding)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *Tiktoken) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// Runes treats every Unicode code point as one token. It needs no
// vocabulary, so it backs offline runs and tests.
type Runes struct{}

func (Runes) Encode(text string) []int {
	runes := []rune(text)
	tokens := make([]int, len(runes))
	for i, r := range runes {
		tokens[i] = int(r)
	}
	return tokens
}

func (Runes) Decode(tokens []int) string {
	runes := make([]rune, len(tokens))
	for i, tok := range tokens {
		runes[i] = rune(tok)
	}
	return string(runes)
}
