package assembler

import (
	"path/filepath"
	"regexp"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// matchesExclude reports whether the path or its base name matches any of
// the configured exclude patterns. Patterns containing '*' are treated as
// globs anchored over the whole string; anything else must match exactly.
func matchesExclude(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pat := range patterns {
		if pat == "" {
			continue
		}
		if strings.ContainsRune(pat, '*') {
			re, err := globToRegexp(pat)
			if err != nil {
				continue
			}
			if re.MatchString(base) || re.MatchString(path) {
				return true
			}
		} else if pat == base || pat == path {
			return true
		}
	}
	return false
}

func globToRegexp(pat string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(pat)
	return regexp.Compile("^" + strings.ReplaceAll(quoted, `\*`, ".*") + "$")
}

// gitignoreMatcher wraps the project's .gitignore, if present. A missing or
// unreadable file yields a matcher that ignores nothing.
type gitignoreMatcher struct {
	rules *gitignore.GitIgnore
	root  string
}

func newGitignoreMatcher(projectRoot string) *gitignoreMatcher {
	m := &gitignoreMatcher{root: projectRoot}
	rules, err := gitignore.CompileIgnoreFile(filepath.Join(projectRoot, ".gitignore"))
	if err == nil {
		m.rules = rules
	}
	return m
}

func (m *gitignoreMatcher) Ignored(path string) bool {
	if m.rules == nil {
		return false
	}
	rel, err := filepath.Rel(m.root, path)
	if err != nil {
		return false
	}
	return m.rules.MatchesPath(rel)
}
