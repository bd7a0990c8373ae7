package walk

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func collect(t *testing.T, w *Walker) ([]string, []Warning) {
	t.Helper()
	var paths []string
	warnings, err := w.Walk(func(e Entry, r io.Reader) error {
		data, readErr := io.ReadAll(r)
		if readErr != nil {
			return readErr
		}
		_ = data
		paths = append(paths, e.Path)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	sort.Strings(paths)
	return paths, warnings
}

func TestWalk_Basic(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":        "a",
		"b/c.txt":      "c",
		"b/d/e.txt":    "e",
		"empty-dir/.f": "f",
	})

	paths, warnings := collect(t, New(root, ""))

	want := []string{"a.txt", "b/c.txt", "b/d/e.txt", "empty-dir/.f"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestWalk_DeterministicOrder(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"z.txt": "z",
		"a.txt": "a",
		"m.txt": "m",
	})

	paths, _ := collect(t, New(root, ""))
	want := []string{"a.txt", "m.txt", "z.txt"}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestWalk_AlwaysExcludesRuntimeDir(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":              "a",
		".decree/runs/x.txt": "x",
	})

	paths, _ := collect(t, New(root, ".decree"))
	for _, p := range paths {
		if p == ".decree/runs/x.txt" {
			t.Errorf("runtime directory should be excluded, got %v", paths)
		}
	}
}

func TestWalk_AlwaysExcludesVCSDirs(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":          "a",
		".git/HEAD":      "ref",
		".git/objects/x": "x",
	})

	paths, _ := collect(t, New(root, ""))
	for _, p := range paths {
		if p == ".git/HEAD" || p == ".git/objects/x" {
			t.Errorf(".git should be excluded, got %v", paths)
		}
	}
}

func TestWalk_GitignoreAtRoot(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":       "a",
		"build.log":   "log",
		".gitignore":  "*.log\n",
	})

	paths, _ := collect(t, New(root, ""))
	for _, p := range paths {
		if p == "build.log" {
			t.Errorf("build.log should be ignored, got %v", paths)
		}
	}
}

func TestWalk_GitignoreNestedScoping(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"sub/.gitignore": "skip.txt\n",
		"sub/skip.txt":   "x",
		"sub/keep.txt":   "y",
		"skip.txt":       "z", // not ignored — pattern is scoped to sub/
	})

	paths, _ := collect(t, New(root, ""))
	var has = map[string]bool{}
	for _, p := range paths {
		has[p] = true
	}
	if has["sub/skip.txt"] {
		t.Error("sub/skip.txt should be ignored by sub/.gitignore")
	}
	if !has["sub/keep.txt"] {
		t.Error("sub/keep.txt should be present")
	}
	if !has["skip.txt"] {
		t.Error("top-level skip.txt should not be ignored by sub/.gitignore")
	}
}

func TestWalk_GitignoreDirectoryPattern(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":     "vendor/\n",
		"vendor/lib.go":  "x",
		"src/main.go":    "y",
	})

	paths, _ := collect(t, New(root, ""))
	for _, p := range paths {
		if p == "vendor/lib.go" {
			t.Errorf("vendor/ should be excluded entirely, got %v", paths)
		}
	}
}

func TestWalk_GitignoreNegation(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":     "*.log\n!important.log\n",
		"a.log":          "a",
		"important.log":  "keep",
	})

	paths, _ := collect(t, New(root, ""))
	var has = map[string]bool{}
	for _, p := range paths {
		has[p] = true
	}
	if has["a.log"] {
		t.Error("a.log should be ignored")
	}
	if !has["important.log"] {
		t.Error("important.log should survive the negation pattern")
	}
}

func TestWalk_OverrideFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":        "a",
		"scratch.tmp":  "tmp",
		".decreeignore": "*.tmp\n",
	})

	w := New(root, "")
	w.OverrideFile = ".decreeignore"
	paths, _ := collect(t, w)
	for _, p := range paths {
		if p == "scratch.tmp" {
			t.Errorf("scratch.tmp should be excluded by override file, got %v", paths)
		}
	}
}

func TestWalk_SymlinkToRegularFileFollowed(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"real.txt": "hello"})
	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(filepath.Join(root, "real.txt"), link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	paths, _ := collect(t, New(root, ""))
	var has = map[string]bool{}
	for _, p := range paths {
		has[p] = true
	}
	if !has["link.txt"] {
		t.Error("symlink to a regular file should be followed and included")
	}
}

func TestWalk_SymlinkToDirectorySkipped(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"dir/real.txt": "hello"})
	link := filepath.Join(root, "dirlink")
	if err := os.Symlink(filepath.Join(root, "dir"), link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	paths, _ := collect(t, New(root, ""))
	for _, p := range paths {
		if p == "dirlink" {
			t.Errorf("directory symlink should be skipped, got %v", paths)
		}
	}
}

func TestWalk_BrokenSymlinkProducesWarning(t *testing.T) {
	root := t.TempDir()
	link := filepath.Join(root, "broken")
	if err := os.Symlink(filepath.Join(root, "does-not-exist"), link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	paths, warnings := collect(t, New(root, ""))
	for _, p := range paths {
		if p == "broken" {
			t.Error("broken symlink should be omitted from the manifest")
		}
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(warnings), warnings)
	}
	if warnings[0].Path != "broken" {
		t.Errorf("warning path = %q, want broken", warnings[0].Path)
	}
}

func TestWalk_MissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does-not-exist")
	_, err := New(root, "").Walk(func(Entry, io.Reader) error { return nil })
	if err == nil {
		t.Error("expected error walking a missing root")
	}
}

func TestWalk_VisitError(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a"})

	_, err := New(root, "").Walk(func(Entry, io.Reader) error {
		return os.ErrInvalid
	})
	if err == nil {
		t.Error("expected visit error to propagate")
	}
}
