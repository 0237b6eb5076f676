// Package tokenutil provides a centralized token counting utility backed by
// tiktoken-go. It lazily initializes the cl100k_base encoding on first use and
// falls back to a character-based heuristic if initialization fails.
package tokenutil

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	once     sync.Once
	encoding *tiktoken.Tiktoken
)

func initEncoding() {
	once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
}

// CountTokens returns a token count using cl100k_base encoding. If tiktoken is
// unavailable it falls back to EstimateFast.
func CountTokens(text string) int {
	initEncoding()
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return EstimateFast(text)
}

// EstimateFast returns a heuristic token estimate: max(runes/4, word_count).
func EstimateFast(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	runes := len([]rune(trimmed))
	words := len(strings.Fields(trimmed))
	estimate := runes / 4
	if estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}

// TruncateToBudget trims text to at most budget tokens, cutting on line
// boundaries from the end and appending a truncation marker when anything was
// dropped.
func TruncateToBudget(text string, budget int) string {
	if budget <= 0 || CountTokens(text) <= budget {
		return text
	}
	lines := strings.Split(text, "\n")
	for len(lines) > 1 {
		lines = lines[:len(lines)-1]
		candidate := strings.Join(lines, "\n")
		if CountTokens(candidate) <= budget {
			return candidate + "\n...(truncated)"
		}
	}
	// Single oversized line: cut by runes.
	runes := []rune(text)
	for len(runes) > 0 && CountTokens(string(runes)) > budget {
		cut := len(runes) / 2
		if cut == 0 {
			break
		}
		runes = runes[:len(runes)-cut]
	}
	return string(runes) + "...(truncated)"
}
