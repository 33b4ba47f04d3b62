package assembler

import (
	"os"
	"path/filepath"
	"strings"
)

// isAbsRef reports whether a file reference is absolute: a leading slash or
// a drive-letter colon at index 1.
func isAbsRef(ref string) bool {
	if ref == "" {
		return false
	}
	return ref[0] == '/' || (len(ref) > 1 && ref[1] == ':')
}

// Resolve turns a file reference into an absolute, weakly-canonicalized
// path. Relative references are joined to projectRoot. Canonicalization is
// best-effort: symlink resolution failures fall back to the cleaned path,
// never an error.
func Resolve(ref, projectRoot string) string {
	var path string
	if isAbsRef(ref) {
		path = ref
	} else {
		path = filepath.Join(projectRoot, ref)
	}
	return normalize(path)
}

func normalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// IsAllowed is the sandbox boundary: the canonicalized target must sit
// inside projectRoot and be an existing regular file. A target outside the
// root is rejected outright, never adjusted to an allowed ancestor.
func IsAllowed(path, projectRoot string) bool {
	rootAbs, err := filepath.Abs(projectRoot)
	if err != nil {
		return false
	}
	targetAbs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	if resolved, err := filepath.EvalSymlinks(rootAbs); err == nil {
		rootAbs = resolved
	}
	if resolved, err := filepath.EvalSymlinks(targetAbs); err == nil {
		targetAbs = resolved
	}

	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}

	info, err := os.Stat(targetAbs)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
