// Package relevance estimates how pertinent a source file is to a prompt
// using keyword overlap between the prompt and the file's structural index.
package relevance

import (
	"fmt"
	"strings"

	"github.com/clio-ai/clio/internal/scan"
)

// Weights for the three match components. The divisor normalizes the
// weighted sum back into [0,1].
const (
	exactWeight    = 1.0
	partialWeight  = 0.7
	containsWeight = 0.5
	weightDivisor  = 2.2
)

// Breakdown records how many prompt keywords matched under each rule, so the
// heuristic can be inspected and tested component by component.
type Breakdown struct {
	Exact          int
	Partial        int
	Contains       int
	PromptKeywords int
}

// Score is the relevance verdict for one (prompt, file) pair.
type Score struct {
	Score           float64
	Reason          string
	MatchedKeywords []string
	Breakdown       Breakdown
}

// ScoreFile scans the file at path and scores it against the prompt.
func ScoreFile(prompt, path string, opts Options) Score {
	sum, err := scan.File(path)
	if err != nil {
		return Score{Score: 0, Reason: fmt.Sprintf("Error during analysis: %v", err)}
	}
	return ScoreSummary(prompt, sum, opts)
}

// ScoreSummary scores a prompt against an already-built file summary.
func ScoreSummary(prompt string, sum *scan.Summary, opts Options) Score {
	promptKeywords := Keywords(prompt, opts)
	if len(promptKeywords) == 0 {
		return Score{Score: 0, Reason: "No valid keywords found in prompt"}
	}

	fileTerms := searchableTerms(sum, opts)
	if len(fileTerms) == 0 {
		return Score{Score: 0, Reason: "No searchable terms found in file"}
	}

	score := Score{Breakdown: Breakdown{PromptKeywords: len(promptKeywords)}}
	for _, kw := range promptKeywords {
		matched := false
		for _, term := range fileTerms {
			if kw == term {
				score.Breakdown.Exact++
				score.MatchedKeywords = append(score.MatchedKeywords,
					fmt.Sprintf("%s (exact match: %s)", kw, term))
				matched = true
				break
			}
		}
		if matched {
			// An exact match also satisfies the weaker rules.
			score.Breakdown.Partial++
			if len(kw) >= 3 {
				score.Breakdown.Contains++
			}
			continue
		}
		for _, term := range fileTerms {
			if strings.Contains(kw, term) || strings.Contains(term, kw) {
				score.Breakdown.Partial++
				score.MatchedKeywords = append(score.MatchedKeywords,
					fmt.Sprintf("%s (partial match: %s)", kw, term))
				break
			}
		}
		for _, term := range fileTerms {
			if len(kw) >= 3 && strings.Contains(term, kw) {
				score.Breakdown.Contains++
				break
			}
		}
	}

	n := float64(len(promptKeywords))
	exact := float64(score.Breakdown.Exact) / n
	partial := float64(score.Breakdown.Partial) / n
	contains := float64(score.Breakdown.Contains) / n

	score.Score = (exact*exactWeight + partial*partialWeight + contains*containsWeight) / weightDivisor
	if score.Score > 1.0 {
		score.Score = 1.0
	}
	score.Reason = reasonFor(score.Score)
	return score
}

func reasonFor(score float64) string {
	switch {
	case score >= 0.8:
		return "High relevance: strong keyword matches found"
	case score >= 0.5:
		return "Medium relevance: some keyword matches found"
	case score >= 0.3:
		return "Low relevance: weak keyword matches found"
	default:
		return "No relevance: no significant keyword matches"
	}
}

// MeetsThreshold reports whether the score clears the configured threshold.
func MeetsThreshold(score Score, opts Options) bool {
	return score.Score >= opts.RelevanceThreshold
}

// searchableTerms flattens the file summary into normalized keyword terms.
// Multi-word identifiers contribute each of their word parts.
func searchableTerms(sum *scan.Summary, opts Options) []string {
	seen := map[string]bool{}
	var terms []string

	add := func(names []string) {
		for _, name := range names {
			for _, part := range splitIdentifier(name) {
				norm := Normalize(part)
				if len(norm) >= opts.MinKeywordLength && !seen[norm] {
					seen[norm] = true
					terms = append(terms, norm)
				}
			}
		}
	}

	if opts.IncludeFunctions {
		add(sum.Functions)
	}
	if opts.IncludeTypes {
		add(sum.Types)
	}
	if opts.IncludeImports {
		add(sum.Imports)
	}
	return terms
}

// splitIdentifier breaks camelCase, snake_case and path-like identifiers
// into their word parts, keeping the whole identifier as a term too.
func splitIdentifier(name string) []string {
	parts := []string{name}
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '/' || r == '.' || r == '-':
			flush()
		case r >= 'A' && r <= 'Z' && i > 0:
			flush()
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return parts
}
