package relevance

import (
	"strings"
	"testing"

	"github.com/clio-ai/clio/internal/scan"
)

func TestKeywordsNormalization(t *testing.T) {
	opts := DefaultOptions()
	got := Keywords("Please explain the computeArea() function, computeArea!", opts)

	want := []string{"computearea", "function"}
	if len(got) != len(want) {
		t.Fatalf("Keywords = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keywords[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestScoreBounds(t *testing.T) {
	opts := DefaultOptions()
	sum := &scan.Summary{
		Path:      "a.cpp",
		Functions: []string{"computeArea", "drawWidget"},
		Types:     []string{"Widget"},
	}

	prompts := []string{
		"computeArea drawWidget widget",
		"something totally unrelated here",
		"compute area widget draw render paint",
	}
	for _, prompt := range prompts {
		score := ScoreSummary(prompt, sum, opts)
		if score.Score < 0 || score.Score > 1 {
			t.Errorf("score %f out of [0,1] for prompt %q", score.Score, prompt)
		}
	}
}

func TestIdenticalKeywordSetScoresHigh(t *testing.T) {
	opts := DefaultOptions()
	sum := &scan.Summary{
		Path:      "a.cpp",
		Functions: []string{"alpha", "beta"},
		Types:     []string{"gamma"},
	}

	score := ScoreSummary("alpha beta gamma", sum, opts)
	if score.Score < 0.8 {
		t.Errorf("identical keyword sets should score >= 0.8, got %f", score.Score)
	}
	if !strings.HasPrefix(score.Reason, "High relevance") {
		t.Errorf("expected high relevance bucket, got %q", score.Reason)
	}
	if score.Breakdown.Exact != 3 {
		t.Errorf("expected 3 exact matches, got %d", score.Breakdown.Exact)
	}
}

func TestZeroKeywordCases(t *testing.T) {
	opts := DefaultOptions()

	score := ScoreSummary("the and for", &scan.Summary{Functions: []string{"alpha"}}, opts)
	if score.Score != 0 {
		t.Errorf("stop-word-only prompt should score 0, got %f", score.Score)
	}

	score = ScoreSummary("alpha beta", &scan.Summary{}, opts)
	if score.Score != 0 {
		t.Errorf("empty file summary should score 0, got %f", score.Score)
	}
	if score.Reason == "" {
		t.Error("zero score should still carry an explanatory reason")
	}
}

func TestPartialAndContainsMatches(t *testing.T) {
	opts := DefaultOptions()
	sum := &scan.Summary{Functions: []string{"parseConfigFile"}}

	// "parseconfigfile" term plus split parts "parse", "config".
	score := ScoreSummary("parse settings", sum, opts)
	if score.Breakdown.Exact != 1 {
		t.Errorf("expected exact match on split identifier part, got %+v", score.Breakdown)
	}
	if score.Score <= 0 {
		t.Error("expected a positive score for overlapping identifier parts")
	}
}

func TestMeetsThreshold(t *testing.T) {
	opts := DefaultOptions()

	if !MeetsThreshold(Score{Score: 0.3}, opts) {
		t.Error("0.3 should meet the default threshold")
	}
	if MeetsThreshold(Score{Score: 0.29}, opts) {
		t.Error("0.29 should not meet the default threshold")
	}

	opts.RelevanceThreshold = 0.9
	if MeetsThreshold(Score{Score: 0.8}, opts) {
		t.Error("0.8 should not meet a 0.9 threshold")
	}
}

func TestSplitIdentifier(t *testing.T) {
	parts := splitIdentifier("parseConfig_file")
	joined := strings.Join(parts, " ")
	for _, want := range []string{"parseConfig_file", "parse", "Config", "file"} {
		if !strings.Contains(joined, want) {
			t.Errorf("splitIdentifier missing %q in %v", want, parts)
		}
	}
}
