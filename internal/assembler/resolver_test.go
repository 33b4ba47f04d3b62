package assembler

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveRelative(t *testing.T) {
	root := t.TempDir()
	got := Resolve("src/a.h", root)
	want := filepath.Join(root, "src", "a.h")
	if rootResolved, err := filepath.EvalSymlinks(root); err == nil {
		want = filepath.Join(rootResolved, "src", "a.h")
	}
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestResolveAbsolute(t *testing.T) {
	got := Resolve("/etc/hosts", t.TempDir())
	if got != "/etc/hosts" {
		t.Errorf("Resolve(/etc/hosts) = %q", got)
	}
}

func TestIsAllowedRejectsOutsideRoot(t *testing.T) {
	root := t.TempDir()
	if IsAllowed("/etc/passwd", root) {
		t.Error("path outside the project root must be rejected")
	}
	if IsAllowed(filepath.Join(root, "..", "elsewhere"), root) {
		t.Error("parent traversal must be rejected")
	}
}

func TestIsAllowedAcceptsExistingFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "src", "a.h")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#pragma once\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if !IsAllowed(path, root) {
		t.Error("existing file under the root must be allowed")
	}
	if IsAllowed(filepath.Join(root, "src"), root) {
		t.Error("directories are not includable")
	}
	if IsAllowed(filepath.Join(root, "missing.h"), root) {
		t.Error("missing files are not includable")
	}
}

func TestExtractInclusions(t *testing.T) {
	prompt := "compare @file a.go with @file b/c.go --force please"
	got := ExtractInclusions(prompt)

	if len(got) != 2 {
		t.Fatalf("expected 2 inclusions, got %d", len(got))
	}
	if got[0].FilePath != "a.go" || got[0].Force {
		t.Errorf("first inclusion = %+v", got[0])
	}
	if got[1].FilePath != "b/c.go" || !got[1].Force {
		t.Errorf("second inclusion = %+v", got[1])
	}
	for _, inc := range got {
		if prompt[inc.StartOffset:inc.EndOffset] != inc.RawMatch {
			t.Errorf("offsets do not span the raw match: %+v", inc)
		}
	}
}
