package observability

import (
	"sync"

	"github.com/weaviate/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// EstimateTokens counts cl100k_base tokens across texts. When the encoding is
// unavailable it falls back to roughly four characters per token.
func EstimateTokens(texts ...string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	total := 0
	for _, t := range texts {
		if t == "" {
			continue
		}
		if enc != nil {
			total += len(enc.Encode(t, nil, nil))
			continue
		}
		total += (len(t) + 3) / 4
	}
	return total
}
