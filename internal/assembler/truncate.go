package assembler

import (
	"fmt"
	"strings"
)

// EstimateTokens approximates the token count of text at four characters per
// token, rounded up.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// truncateContent keeps a head and tail slice of the file when the full body
// would blow the context budget. maxContextSize is a token budget; the kept
// line count is derived from it at roughly 50 characters per line. Kept
// lines carry their true 1-based position in the original file.
func truncateContent(path, content string, maxContextSize int) string {
	lines := strings.Split(content, "\n")
	total := len(lines)

	keep := maxContextSize / 50
	if keep < 2 {
		keep = 2
	}
	if keep >= total {
		return content
	}

	head := keep / 2
	tail := keep - head

	var b strings.Builder
	fmt.Fprintf(&b, "// File truncated: showing %d of %d lines\n", keep, total)
	fmt.Fprintf(&b, "// File: %s\n\n", path)
	for i := 0; i < head; i++ {
		fmt.Fprintf(&b, "%d | %s\n", i+1, lines[i])
	}
	fmt.Fprintf(&b, "\n// ... %d lines omitted ...\n\n", total-keep)
	for i := total - tail; i < total; i++ {
		fmt.Fprintf(&b, "%d | %s\n", i+1, lines[i])
	}
	return b.String()
}
