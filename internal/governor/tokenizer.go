package governor

// EstimateTokens approximates token usage at four characters per token,
// rounded up. Good enough for pre-flight budgeting; providers report the
// real number back in their responses.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
