package util

// charsPerToken is the fixed characters-per-token approximation used for all
// context-window accounting. The source model exposes no exact tokenizer to
// the engine; four characters per token is the conventional estimate for
// English prose and errs on the generous side for budget enforcement.
const charsPerToken = 4

// EstimateTokens returns a deterministic token estimate for text.
// Empty text estimates to zero; any non-empty text estimates to at least one.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}
