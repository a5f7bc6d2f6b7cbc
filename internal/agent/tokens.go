package agent

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens measures text with a real tokenizer. It backs the
// discovery-token accounting when a provider response carries no usage
// data, so the stored cost metric never silently reads zero.
func CountTokens(text string) int64 {
	if text == "" {
		return 0
	}
	encodingOnce.Do(func() {
		// cl100k_base is close enough across vendors for cost accounting.
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding == nil {
		return int64(estimateTokens(text))
	}
	return int64(len(encoding.Encode(text, nil, nil)))
}
