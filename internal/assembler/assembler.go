package assembler

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/clio-ai/clio/internal/memory"
	"github.com/clio-ai/clio/internal/relevance"
	"github.com/clio-ai/clio/internal/scan"
)

// Options controls one context-assembly pass. MaxContextSize is a token
// budget, not bytes.
type Options struct {
	MaxContextSize             int
	TruncateLargeFiles         bool
	IncludeLineNumbers         bool
	ExcludePatterns            []string
	FileHeaderFormat           string
	RespectGitignore           bool
	EnableIntelligentSelection bool
	ShowRelevanceInfo          bool
	EnableMemoryIntegration    bool
	MaxMemoryNodes             int
	MinMemoryImportance        int
	Relevance                  relevance.Options
}

func DefaultOptions() Options {
	return Options{
		MaxContextSize:      8000,
		TruncateLargeFiles:  true,
		ExcludePatterns:     []string{"build/*", "vendor/*", ".git/*", "node_modules/*"},
		FileHeaderFormat:    "// File: {path}\n",
		MaxMemoryNodes:      5,
		MinMemoryImportance: 30,
		Relevance:           relevance.DefaultOptions(),
	}
}

// MemorySource is the slice of the memory service the assembler consumes.
type MemorySource interface {
	Search(keyword string, tags []string, limit int) ([]string, error)
	RecentlyAccessed(limit int) ([]string, error)
	Get(id string) (*memory.Node, error)
	GenerateContext(ids []string, maxTokens int) (string, error)
}

// Assembler expands @file directives in a prompt into file contents,
// summaries, or inline diagnostics. A failed inclusion never fails the
// batch.
type Assembler struct {
	log    *zap.Logger
	memory MemorySource
}

func New(log *zap.Logger) *Assembler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{log: log}
}

func (a *Assembler) AttachMemory(m MemorySource) { a.memory = m }

// BuildContext materializes every @file directive in the prompt. Inclusions
// are replaced in descending offset order so earlier offsets stay valid
// while later spans are spliced out. A prompt without directives is
// returned unchanged.
func (a *Assembler) BuildContext(prompt, projectRoot string, opts Options) string {
	inclusions := ExtractInclusions(prompt)
	if len(inclusions) == 0 {
		return prompt
	}

	var gi *gitignoreMatcher
	if opts.RespectGitignore {
		gi = newGitignoreMatcher(projectRoot)
	}

	sort.Slice(inclusions, func(i, j int) bool {
		return inclusions[i].StartOffset > inclusions[j].StartOffset
	})

	result := prompt
	for _, inc := range inclusions {
		replacement := a.materialize(prompt, inc, projectRoot, gi, opts)
		result = result[:inc.StartOffset] + replacement + result[inc.EndOffset:]
	}
	return result
}

// BuildContextWithMemory builds the file context and prepends a memory
// block. Explicit node ids win; otherwise, when memory integration is
// enabled, relevant nodes are discovered from the prompt's keywords.
func (a *Assembler) BuildContextWithMemory(prompt, projectRoot string, opts Options, nodeIDs []string) string {
	result := a.BuildContext(prompt, projectRoot, opts)

	if len(nodeIDs) == 0 && opts.EnableMemoryIntegration {
		nodeIDs = a.findRelevantNodes(prompt, opts)
	}
	if len(nodeIDs) == 0 || a.memory == nil {
		return result
	}

	memoryContext, err := a.memory.GenerateContext(nodeIDs, opts.MaxContextSize/2)
	if err != nil {
		a.log.Warn("memory context generation failed", zap.Error(err))
		return result
	}
	if memoryContext == "" {
		return result
	}

	var b strings.Builder
	b.WriteString("\n// ===== MEMORY CONTEXT =====\n")
	b.WriteString(memoryContext)
	b.WriteString("// ===== END MEMORY CONTEXT =====\n\n")
	b.WriteString(result)
	return b.String()
}

// materialize decides what one directive becomes: an error comment, a
// warning comment, a summary, or the formatted file body.
func (a *Assembler) materialize(prompt string, inc FileInclusion, projectRoot string, gi *gitignoreMatcher, opts Options) string {
	resolved := Resolve(inc.FilePath, projectRoot)

	if !IsAllowed(resolved, projectRoot) {
		a.log.Debug("inclusion rejected by sandbox", zap.String("path", inc.FilePath))
		return fmt.Sprintf("// Error: File '%s' is outside project directory or access denied", inc.FilePath)
	}

	if matchesExclude(resolved, opts.ExcludePatterns) || matchesExclude(inc.FilePath, opts.ExcludePatterns) ||
		(gi != nil && gi.Ignored(resolved)) {
		return fmt.Sprintf("// Warning: File '%s' matches exclude pattern", inc.FilePath)
	}

	if opts.EnableIntelligentSelection && !inc.Force {
		return a.renderWithRelevance(prompt, inc, resolved, opts)
	}
	return a.renderFull(inc, resolved, opts)
}

func (a *Assembler) renderFull(inc FileInclusion, resolved string, opts Options) string {
	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Sprintf("// Error reading file '%s': %v", inc.FilePath, err)
	}

	content := formatFile(inc.FilePath, string(data), opts)
	if opts.TruncateLargeFiles && EstimateTokens(content) > opts.MaxContextSize {
		content = truncateContent(inc.FilePath, string(data), opts.MaxContextSize)
	}
	return content
}

func (a *Assembler) renderWithRelevance(prompt string, inc FileInclusion, resolved string, opts Options) string {
	score := relevance.ScoreFile(prompt, resolved, opts.Relevance)

	if relevance.MeetsThreshold(score, opts.Relevance) {
		content := a.renderFull(inc, resolved, opts)
		if opts.ShowRelevanceInfo {
			content = relevanceInfo(score, inc.FilePath) + "\n" + content
		}
		return content
	}

	var b strings.Builder
	if opts.ShowRelevanceInfo {
		b.WriteString(relevanceInfo(score, inc.FilePath))
		b.WriteString("\n")
	}
	sum, err := scan.File(resolved)
	if err != nil {
		return fmt.Sprintf("// Error reading file '%s': %v", inc.FilePath, err)
	}
	sum.Path = inc.FilePath
	b.WriteString(sum.Render())
	b.WriteString("\n// Note: File summary shown instead of full content due to low relevance score.\n")
	fmt.Fprintf(&b, "// Use @file %s --force to include full file if needed.\n", inc.FilePath)
	return b.String()
}

func formatFile(path, content string, opts Options) string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(opts.FileHeaderFormat, "{path}", path))

	if opts.IncludeLineNumbers {
		for i, line := range strings.Split(strings.TrimSuffix(content, "\n"), "\n") {
			fmt.Fprintf(&b, "%d | %s\n", i+1, line)
		}
	} else {
		b.WriteString(content)
		if content != "" && !strings.HasSuffix(content, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func relevanceInfo(score relevance.Score, path string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// Relevance Analysis for: %s\n", path)
	fmt.Fprintf(&b, "// Score: %.2f - %s\n", score.Score, score.Reason)
	if len(score.MatchedKeywords) > 0 {
		fmt.Fprintf(&b, "// Matched keywords: %s\n", strings.Join(score.MatchedKeywords, ", "))
	}
	return b.String()
}

var memoryKeywordRe = regexp.MustCompile(`[A-Za-z0-9_]{4,}`)

// promptKeywords lowercases and dedupes every word of four or more
// characters, preserving first-seen order.
func promptKeywords(prompt string) []string {
	seen := make(map[string]struct{})
	var keywords []string
	for _, word := range memoryKeywordRe.FindAllString(prompt, -1) {
		word = strings.ToLower(word)
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}
	return keywords
}

// findRelevantNodes searches memory per prompt keyword, keeps nodes that
// clear the importance floor and overlap the prompt, and backfills from
// recently accessed nodes up to MaxMemoryNodes.
func (a *Assembler) findRelevantNodes(prompt string, opts Options) []string {
	if a.memory == nil {
		return nil
	}
	max := opts.MaxMemoryNodes
	if max <= 0 {
		return nil
	}

	keywords := promptKeywords(prompt)
	picked := make([]string, 0, max)
	seen := make(map[string]struct{})

	add := func(id string) bool {
		if _, ok := seen[id]; ok {
			return false
		}
		if !a.nodeRelevant(prompt, id, keywords, opts) {
			return false
		}
		seen[id] = struct{}{}
		picked = append(picked, id)
		return true
	}

	for _, kw := range keywords {
		ids, err := a.memory.Search(kw, nil, max*2)
		if err != nil {
			a.log.Debug("memory search failed", zap.String("keyword", kw), zap.Error(err))
			continue
		}
		for _, id := range ids {
			add(id)
			if len(picked) >= max {
				return picked
			}
		}
	}

	if len(picked) < max {
		recent, err := a.memory.RecentlyAccessed(max - len(picked))
		if err == nil {
			for _, id := range recent {
				add(id)
			}
		}
	}
	return picked
}

func (a *Assembler) nodeRelevant(prompt, id string, keywords []string, opts Options) bool {
	node, err := a.memory.Get(id)
	if err != nil || node == nil {
		return false
	}
	if node.ImportanceScore < opts.MinMemoryImportance {
		return false
	}

	tags := make(map[string]struct{}, len(node.Tags))
	for _, t := range node.Tags {
		tags[strings.ToLower(t)] = struct{}{}
	}
	content := strings.ToLower(node.Content)
	for _, kw := range keywords {
		if _, ok := tags[kw]; ok {
			return true
		}
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}
