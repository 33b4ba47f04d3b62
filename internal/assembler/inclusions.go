package assembler

import "regexp"

// inclusionRe matches a directive and captures the path token. The path
// extends up to the next whitespace, so flags like --force ride along as
// separate tokens and are not part of the path.
var inclusionRe = regexp.MustCompile(`@file\s+(\S+)`)

// forceRe detects the --force flag immediately after a path token.
var forceRe = regexp.MustCompile(`^\s+--force\b`)

// FileInclusion is one @file directive found in a prompt. Offsets are byte
// positions into the prompt of the full directive text, so replacements can
// be spliced in without re-scanning.
type FileInclusion struct {
	FilePath    string
	StartOffset int
	EndOffset   int
	RawMatch    string
	Force       bool
}

// ExtractInclusions returns every @file directive in the prompt in document
// order. A --force token following the path is folded into the directive's
// span so it is consumed by the replacement.
func ExtractInclusions(prompt string) []FileInclusion {
	matches := inclusionRe.FindAllStringSubmatchIndex(prompt, -1)
	if len(matches) == 0 {
		return nil
	}

	inclusions := make([]FileInclusion, 0, len(matches))
	for _, m := range matches {
		inc := FileInclusion{
			FilePath:    prompt[m[2]:m[3]],
			StartOffset: m[0],
			EndOffset:   m[1],
		}
		if loc := forceRe.FindStringIndex(prompt[inc.EndOffset:]); loc != nil {
			inc.Force = true
			inc.EndOffset += loc[1]
		}
		inc.RawMatch = prompt[inc.StartOffset:inc.EndOffset]
		inclusions = append(inclusions, inc)
	}
	return inclusions
}
