package usecase

import "strings"

// TruncateTokens cuts text down to at most limit tokens, preserving whole
// tokens rather than slicing mid-word: the token sequence is truncated and
// decoded back to text. Tokens are whitespace-delimited; that slightly
// underestimates what subword embedding tokenizers count, which errs on the
// safe side of the model's budget.
func TruncateTokens(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	tokens := strings.Fields(text)
	if len(tokens) <= limit {
		return text
	}
	return strings.Join(tokens[:limit], " ")
}
