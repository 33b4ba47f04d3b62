// Package scan builds lightweight structural summaries of source files:
// function names, type/class names, and import/include targets. It is a
// line-oriented scanner, not a parser; it only needs to be good enough to
// feed relevance scoring and file summaries.
package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Summary holds the extracted structure of one source file.
type Summary struct {
	Path      string
	Functions []string
	Types     []string
	Imports   []string
}

var (
	cFuncRe    = regexp.MustCompile(`^[A-Za-z_][\w:<>,&*~\s]*?\b([A-Za-z_]\w*)\s*\([^;]*$`)
	cTypeRe    = regexp.MustCompile(`^\s*(?:class|struct)\s+([A-Za-z_]\w*)`)
	cIncludeRe = regexp.MustCompile(`^\s*#\s*include\s*[<"]([^>"]+)[>"]`)
	pyDefRe    = regexp.MustCompile(`^\s*def\s+([A-Za-z_]\w*)`)
	pyClassRe  = regexp.MustCompile(`^\s*class\s+([A-Za-z_]\w*)`)
	jsFuncRe   = regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+([A-Za-z_$]\w*)`)
	jsConstRe  = regexp.MustCompile(`^\s*(?:export\s+)?const\s+([A-Za-z_$]\w*)\s*=\s*(?:async\s*)?\(`)
	jsTypeRe   = regexp.MustCompile(`^\s*(?:export\s+)?(?:class|interface|type)\s+([A-Za-z_$]\w*)`)
)

// File reads the file at path and scans it according to its extension.
func File(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Content(path, string(data)), nil
}

// Content scans already-loaded source text. The path is used only for
// language detection and reporting.
func Content(path, content string) *Summary {
	sum := &Summary{Path: path}
	lines := strings.Split(content, "\n")

	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		scanGo(sum, lines)
	case ".py":
		scanPython(sum, lines)
	case ".js", ".jsx", ".ts", ".tsx":
		scanJS(sum, lines)
	case ".c", ".h", ".cc", ".cpp", ".cxx", ".hpp", ".hh":
		scanCLike(sum, lines)
	default:
		scanCLike(sum, lines)
		if len(sum.Functions) == 0 && len(sum.Types) == 0 {
			scanGo(sum, lines)
		}
	}
	return sum
}

func scanGo(sum *Summary, lines []string) {
	inImports := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "func "):
			name := trimmed[len("func "):]
			if strings.HasPrefix(name, "(") {
				// method: skip the receiver
				if idx := strings.Index(name, ")"); idx >= 0 {
					name = strings.TrimSpace(name[idx+1:])
				}
			}
			if idx := strings.IndexAny(name, "([ "); idx > 0 {
				appendUnique(&sum.Functions, name[:idx])
			}
		case strings.HasPrefix(trimmed, "type "):
			rest := trimmed[len("type "):]
			if idx := strings.IndexAny(rest, " \t"); idx > 0 {
				appendUnique(&sum.Types, rest[:idx])
			}
		case strings.HasPrefix(trimmed, "import ("):
			inImports = true
		case inImports && trimmed == ")":
			inImports = false
		case inImports || strings.HasPrefix(trimmed, "import "):
			if path := strings.Trim(strings.TrimPrefix(trimmed, "import "), "\t \""); path != "" && path != "(" {
				appendUnique(&sum.Imports, path)
			}
		}
	}
}

func scanPython(sum *Summary, lines []string) {
	for _, line := range lines {
		if m := pyDefRe.FindStringSubmatch(line); m != nil {
			appendUnique(&sum.Functions, m[1])
		} else if m := pyClassRe.FindStringSubmatch(line); m != nil {
			appendUnique(&sum.Types, m[1])
		} else {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from ") {
				fields := strings.Fields(trimmed)
				if len(fields) >= 2 {
					appendUnique(&sum.Imports, fields[1])
				}
			}
		}
	}
}

func scanJS(sum *Summary, lines []string) {
	for _, line := range lines {
		if m := jsFuncRe.FindStringSubmatch(line); m != nil {
			appendUnique(&sum.Functions, m[1])
		} else if m := jsConstRe.FindStringSubmatch(line); m != nil {
			appendUnique(&sum.Functions, m[1])
		} else if m := jsTypeRe.FindStringSubmatch(line); m != nil {
			appendUnique(&sum.Types, m[1])
		} else {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "import ") {
				if idx := strings.LastIndexAny(trimmed, `'"`); idx > 0 {
					if start := strings.IndexAny(trimmed, `'"`); start >= 0 && start < idx {
						appendUnique(&sum.Imports, trimmed[start+1:idx])
					}
				}
			}
		}
	}
}

func scanCLike(sum *Summary, lines []string) {
	inComment := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "/*") {
			inComment = true
		}
		if inComment {
			if strings.Contains(trimmed, "*/") {
				inComment = false
			}
			continue
		}
		if strings.HasPrefix(trimmed, "//") {
			continue
		}

		if m := cIncludeRe.FindStringSubmatch(line); m != nil {
			appendUnique(&sum.Imports, m[1])
			continue
		}
		if m := cTypeRe.FindStringSubmatch(line); m != nil {
			appendUnique(&sum.Types, m[1])
			continue
		}
		// Function definitions only: a name followed by an open paren on a
		// line that is not a control-flow statement or declaration.
		if strings.ContainsRune(trimmed, '(') && !strings.HasSuffix(trimmed, ";") {
			if isControlKeyword(trimmed) {
				continue
			}
			if m := cFuncRe.FindStringSubmatch(trimmed); m != nil {
				appendUnique(&sum.Functions, m[1])
			}
		}
	}
}

func isControlKeyword(line string) bool {
	for _, kw := range []string{"if", "for", "while", "switch", "return", "else", "catch", "do"} {
		if strings.HasPrefix(line, kw+" ") || strings.HasPrefix(line, kw+"(") {
			return true
		}
	}
	return false
}

func appendUnique(dst *[]string, v string) {
	for _, existing := range *dst {
		if existing == v {
			return
		}
	}
	*dst = append(*dst, v)
}

// Render formats the summary as an inline comment block suitable for
// substitution into an assembled prompt.
func (s *Summary) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "// File: %s\n", s.Path)

	if len(s.Functions) > 0 {
		fmt.Fprintf(&b, "// Functions: %d - %s", len(s.Functions), joinCapped(s.Functions, 5))
		b.WriteString("\n")
	}
	if len(s.Types) > 0 {
		fmt.Fprintf(&b, "// Types: %d - %s", len(s.Types), joinCapped(s.Types, 3))
		b.WriteString("\n")
	}
	if len(s.Imports) > 0 {
		fmt.Fprintf(&b, "// Key Imports: %s", joinCapped(s.Imports, 5))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "// Estimated content: %d major elements\n", len(s.Functions)+len(s.Types))
	return b.String()
}

func joinCapped(items []string, limit int) string {
	if len(items) <= limit {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:limit], ", ") + " ..."
}
