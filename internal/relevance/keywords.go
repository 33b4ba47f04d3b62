package relevance

import "strings"

// defaultStopWords are common English words that carry no signal when
// matching a prompt against code identifiers.
var defaultStopWords = []string{
	"the", "and", "for", "are", "but", "not", "you", "all", "can", "had",
	"her", "was", "one", "our", "out", "day", "get", "has", "him", "his",
	"how", "man", "new", "now", "old", "see", "two", "way", "who", "code",
	"file", "with", "this", "that", "from", "what", "when", "where", "why",
	"does", "please", "explain", "show", "help", "make", "need", "want",
}

// Options controls keyword extraction and threshold decisions.
type Options struct {
	MinKeywordLength   int
	StopWords          []string
	RelevanceThreshold float64
	IncludeFunctions   bool
	IncludeTypes       bool
	IncludeImports     bool
}

// DefaultOptions returns the scorer defaults: 3-character minimum keywords,
// the built-in stop-word list, and a 0.3 relevance threshold.
func DefaultOptions() Options {
	return Options{
		MinKeywordLength:   3,
		StopWords:          defaultStopWords,
		RelevanceThreshold: 0.3,
		IncludeFunctions:   true,
		IncludeTypes:       true,
		IncludeImports:     true,
	}
}

// Normalize lower-cases a word and strips everything but letters and digits.
func Normalize(word string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(word) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Keywords tokenizes free text into normalized, deduplicated keywords,
// dropping stop words and anything shorter than MinKeywordLength. Order of
// first appearance is preserved.
func Keywords(text string, opts Options) []string {
	seen := map[string]bool{}
	var out []string
	for _, word := range strings.Fields(text) {
		kw := Normalize(word)
		if len(kw) < opts.MinKeywordLength || seen[kw] || isStopWord(kw, opts.StopWords) {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}

func isStopWord(word string, stopWords []string) bool {
	for _, sw := range stopWords {
		if word == sw {
			return true
		}
	}
	return false
}
