package assembler

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clio-ai/clio/internal/memory"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestBuildContextNoDirectives(t *testing.T) {
	a := New(nil)
	prompt := "just explain this concept to me"
	got := a.BuildContext(prompt, t.TempDir(), DefaultOptions())
	assert.Equal(t, prompt, got)
}

func TestBuildContextFullInclusion(t *testing.T) {
	root := t.TempDir()
	source := "int foo() {\n    return 42;\n}\n"
	writeFile(t, root, "src/a.cpp", source)

	a := New(nil)
	got := a.BuildContext("Explain @file src/a.cpp", root, DefaultOptions())

	assert.Contains(t, got, "// File: src/a.cpp\n")
	assert.Contains(t, got, source)
	assert.True(t, strings.HasPrefix(got, "Explain "))
	assert.NotContains(t, got, "@file")
}

func TestBuildContextLineNumbers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n\nfunc A() {}\n")

	opts := DefaultOptions()
	opts.IncludeLineNumbers = true
	got := New(nil).BuildContext("@file a.go", root, opts)

	assert.Contains(t, got, "1 | package a\n")
	assert.Contains(t, got, "3 | func A() {}\n")
}

func TestSandboxViolationComment(t *testing.T) {
	root := t.TempDir()

	got := New(nil).BuildContext("read @file ../../etc/passwd now", root, DefaultOptions())

	assert.Contains(t, got, "outside project directory")
	assert.Contains(t, got, "// Error: File '../../etc/passwd'")
	assert.NotContains(t, got, "@file")
}

func TestExcludePatternWarning(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "build/out.o", "binary-ish")

	got := New(nil).BuildContext("@file build/out.o", root, DefaultOptions())

	assert.Contains(t, got, "// Warning: File 'build/out.o' matches exclude pattern")
}

func TestGitignoreExclusion(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "secrets.txt\n")
	writeFile(t, root, "secrets.txt", "hunter2")

	opts := DefaultOptions()
	opts.RespectGitignore = true
	got := New(nil).BuildContext("@file secrets.txt", root, opts)
	assert.Contains(t, got, "matches exclude pattern")

	opts.RespectGitignore = false
	got = New(nil).BuildContext("@file secrets.txt", root, opts)
	assert.Contains(t, got, "hunter2")
}

func TestMissingFileComment(t *testing.T) {
	root := t.TempDir()

	got := New(nil).BuildContext("@file nope.go", root, DefaultOptions())

	// A nonexistent file fails the sandbox's regular-file check.
	assert.Contains(t, got, "// Error: File 'nope.go'")
}

func TestOneBadInclusionDoesNotAbortBatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good.go", "package good\n")

	got := New(nil).BuildContext("@file good.go and @file ../escape.go", root, DefaultOptions())

	assert.Contains(t, got, "package good")
	assert.Contains(t, got, "outside project directory")
}

func TestOffsetReplacementOrderEquivalence(t *testing.T) {
	root := t.TempDir()
	files := []string{"a.go", "b.go", "c.go", "d.go"}
	for _, f := range files {
		writeFile(t, root, f, fmt.Sprintf("package %s\n", strings.TrimSuffix(f, ".go")))
	}

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 25; trial++ {
		var b strings.Builder
		for i := 0; i < 1+rng.Intn(4); i++ {
			b.WriteString(wordOf(rng))
			fmt.Fprintf(&b, " @file %s ", files[rng.Intn(len(files))])
		}
		b.WriteString(wordOf(rng))
		prompt := b.String()

		descending := New(nil).BuildContext(prompt, root, DefaultOptions())
		ascending := buildAscending(t, prompt, root)
		require.Equal(t, ascending, descending, "prompt: %q", prompt)
	}
}

// buildAscending replaces inclusions lowest offset first, tracking the
// drift each replacement introduces.
func buildAscending(t *testing.T, prompt, root string) string {
	t.Helper()
	inclusions := ExtractInclusions(prompt)
	sort.Slice(inclusions, func(i, j int) bool {
		return inclusions[i].StartOffset < inclusions[j].StartOffset
	})

	a := New(nil)
	result := prompt
	shift := 0
	for _, inc := range inclusions {
		replacement := a.materialize(prompt, inc, root, nil, DefaultOptions())
		start := inc.StartOffset + shift
		end := inc.EndOffset + shift
		result = result[:start] + replacement + result[end:]
		shift += len(replacement) - (inc.EndOffset - inc.StartOffset)
	}
	return result
}

func wordOf(rng *rand.Rand) string {
	words := []string{"explain", "review", "compare", "trace", "summarize"}
	return words[rng.Intn(len(words))]
}

func TestTruncationBound(t *testing.T) {
	root := t.TempDir()
	var lines []string
	for i := 0; i < 400; i++ {
		lines = append(lines, fmt.Sprintf("line %d with some padding to cost tokens", i))
	}
	content := strings.Join(lines, "\n")
	writeFile(t, root, "big.txt", content)

	opts := DefaultOptions()
	opts.MaxContextSize = 500
	got := New(nil).BuildContext("@file big.txt", root, opts)

	assert.Less(t, EstimateTokens(got), EstimateTokens(content))
	assert.Contains(t, got, "lines omitted")
	assert.Contains(t, got, "// File truncated: showing 10 of 400 lines")
	// Kept tail lines carry their true positions.
	assert.Contains(t, got, "400 | line 399")
}

func TestIntelligentSelectionSummary(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.cpp", "int foo() {\n    return 1;\n}\n")

	opts := DefaultOptions()
	opts.EnableIntelligentSelection = true
	opts.Relevance.RelevanceThreshold = 0.9
	got := New(nil).BuildContext("совершенно unrelated prompt text @file src/a.cpp", root, opts)

	assert.Contains(t, got, "// File: src/a.cpp")
	assert.Contains(t, got, "// Note: File summary shown instead of full content due to low relevance score.")
	assert.Contains(t, got, "// Use @file src/a.cpp --force to include full file if needed.")
	assert.NotContains(t, got, "return 1;")
}

func TestIntelligentSelectionFullOnMatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.cpp", "int computeArea(int w, int h) {\n    return w * h;\n}\n")

	opts := DefaultOptions()
	opts.EnableIntelligentSelection = true
	opts.ShowRelevanceInfo = true
	got := New(nil).BuildContext("computeArea computearea @file src/a.cpp", root, opts)

	assert.Contains(t, got, "return w * h;")
	assert.Contains(t, got, "// Relevance Analysis for: src/a.cpp")
	assert.Contains(t, got, "// Score: ")
}

func TestForceBypassesRelevanceGate(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.cpp", "int foo() {\n    return 1;\n}\n")

	opts := DefaultOptions()
	opts.EnableIntelligentSelection = true
	opts.Relevance.RelevanceThreshold = 0.9
	got := New(nil).BuildContext("unrelated @file src/a.cpp --force trailing", root, opts)

	assert.Contains(t, got, "return 1;")
	assert.NotContains(t, got, "--force")
	assert.Contains(t, got, "trailing")
}

// fakeMemory satisfies MemorySource without a real store.
type fakeMemory struct {
	nodes map[string]*memory.Node
}

func (f *fakeMemory) Search(kw string, tags []string, limit int) ([]string, error) {
	var ids []string
	for id, n := range f.nodes {
		if strings.Contains(strings.ToLower(n.Content), strings.ToLower(kw)) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeMemory) RecentlyAccessed(limit int) ([]string, error) { return nil, nil }

func (f *fakeMemory) Get(id string) (*memory.Node, error) {
	n, ok := f.nodes[id]
	if !ok {
		return nil, fmt.Errorf("no node %s", id)
	}
	return n, nil
}

func (f *fakeMemory) GenerateContext(ids []string, maxTokens int) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		if n, ok := f.nodes[id]; ok {
			b.WriteString(n.Render())
		}
	}
	return b.String(), nil
}

func TestMemoryIntegration(t *testing.T) {
	root := t.TempDir()
	a := New(nil)
	a.AttachMemory(&fakeMemory{nodes: map[string]*memory.Node{
		"m1": {ID: "m1", Name: "database schema", Content: "the sessions table uses sqlite", ImportanceScore: 80},
		"m2": {ID: "m2", Name: "low importance", Content: "sessions trivia", ImportanceScore: 10},
	}})

	opts := DefaultOptions()
	opts.EnableMemoryIntegration = true
	got := a.BuildContextWithMemory("how are sessions stored?", root, opts, nil)

	assert.Contains(t, got, "// ===== MEMORY CONTEXT =====")
	assert.Contains(t, got, "// ===== END MEMORY CONTEXT =====")
	assert.Contains(t, got, "## Memory Node: database schema")
	assert.NotContains(t, got, "low importance")
	assert.True(t, strings.HasSuffix(got, "how are sessions stored?"))
}

func TestMemoryExplicitNodeIDs(t *testing.T) {
	root := t.TempDir()
	a := New(nil)
	a.AttachMemory(&fakeMemory{nodes: map[string]*memory.Node{
		"m1": {ID: "m1", Name: "pinned", Content: "always include me", ImportanceScore: 5},
	}})

	got := a.BuildContextWithMemory("anything", root, DefaultOptions(), []string{"m1"})

	// Explicit ids skip discovery and its importance filter.
	assert.Contains(t, got, "## Memory Node: pinned")
}
