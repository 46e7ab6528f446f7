// Package tokens provides token-count estimation for telemetry accounting.
// Embedding backends do not report token usage, and the pipeline supports
// multiple backends with different tokenizers, so this package uses a
// word-based heuristic: 1 word ≈ 1.3 tokens. The estimate feeds usage
// counters only — it is never used for budgeting or truncation decisions.
package tokens

import "strings"

// wordsToTokens is the word-to-token ratio used for estimation. English
// prose averages roughly 1.3 tokens per whitespace-separated word.
const wordsToTokens = 1.3

// Estimate returns the approximate token count of s.
// Exact tokenization is deliberately not performed.
func Estimate(s string) int {
	words := len(strings.Fields(s))
	return int(float64(words) * wordsToTokens)
}
