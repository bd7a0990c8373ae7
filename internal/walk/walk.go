// Package walk provides the deterministic, ignore-aware directory walker
// shared by checkpoint snapshotting and diffing. It honors hierarchical
// gitignore-format ignore files at any depth plus an optional project-local
// override file, and always excludes the tool's own runtime directory and
// version-control metadata directories.
package walk

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// ignoreFileName is the hierarchical ignore file honored at every depth.
const ignoreFileName = ".gitignore"

// AlwaysExcludedDirs are directory names skipped at every depth regardless
// of ignore-file contents.
var AlwaysExcludedDirs = []string{".git", ".hg", ".svn"}

// Entry describes one file discovered by Walk.
type Entry struct {
	// Path is slash-separated and relative to the walk root.
	Path string
	Mode fs.FileMode
	Size int64
}

// Warning records a per-path error encountered mid-walk (permission denied,
// vanished during traversal, broken symlink). The path is omitted from the
// manifest, but the walk itself continues.
type Warning struct {
	Path string
	Err  error
}

// VisitFunc is called once per discovered regular file, in lexicographic
// path order. r streams the file's content; the walker closes it after
// visit returns.
type VisitFunc func(entry Entry, r io.Reader) error

// Walker walks a directory tree honoring hierarchical ignore files plus an
// optional project-local override file.
type Walker struct {
	// Root is the directory to walk.
	Root string

	// RuntimeDirName, if set, is always excluded at the top level (the
	// tool's own runtime directory).
	RuntimeDirName string

	// OverrideFile, if set, is a path relative to Root to an additional
	// ignore file whose patterns apply tree-wide.
	OverrideFile string
}

// New creates a Walker rooted at root, always excluding runtimeDirName.
func New(root, runtimeDirName string) *Walker {
	return &Walker{Root: root, RuntimeDirName: runtimeDirName}
}

// Walk traverses the tree calling visit for every regular file not excluded
// by ignore rules. It returns warnings for individual path errors without
// aborting the overall walk, and a non-nil error only when the walk itself
// cannot proceed (root missing, unreadable).
func (w *Walker) Walk(visit VisitFunc) ([]Warning, error) {
	root, err := filepath.Abs(w.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", w.Root, err)
	}

	var patterns []gitignore.Pattern
	if w.OverrideFile != "" {
		p, lerr := loadPatterns(filepath.Join(root, w.OverrideFile), nil)
		if lerr != nil && !os.IsNotExist(lerr) {
			return nil, fmt.Errorf("read override file: %w", lerr)
		}
		patterns = append(patterns, p...)
	}
	matcher := gitignore.NewMatcher(patterns)

	var warnings []Warning

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if path == root {
			if err != nil {
				return err
			}
			p, lerr := loadPatterns(filepath.Join(root, ignoreFileName), nil)
			if lerr != nil && !os.IsNotExist(lerr) {
				warnings = append(warnings, Warning{Path: ignoreFileName, Err: lerr})
			}
			if len(p) > 0 {
				patterns = append(patterns, p...)
				matcher = gitignore.NewMatcher(patterns)
			}
			return nil
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		relPath = filepath.ToSlash(relPath)
		domain := strings.Split(relPath, "/")

		if err != nil {
			warnings = append(warnings, Warning{Path: relPath, Err: err})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if isAlwaysExcludedDir(d.Name()) || (w.RuntimeDirName != "" && relPath == w.RuntimeDirName) {
				return filepath.SkipDir
			}
			if matcher.Match(domain, true) {
				return filepath.SkipDir
			}

			p, lerr := loadPatterns(filepath.Join(path, ignoreFileName), domain)
			if lerr != nil && !os.IsNotExist(lerr) {
				warnings = append(warnings, Warning{Path: relPath, Err: lerr})
				return nil
			}
			if len(p) > 0 {
				patterns = append(patterns, p...)
				matcher = gitignore.NewMatcher(patterns)
			}
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			warnings = append(warnings, Warning{Path: relPath, Err: statErr})
			return nil
		}

		if info.Mode()&fs.ModeSymlink != 0 {
			target, statErr := os.Stat(path) // follows the symlink
			if statErr != nil {
				warnings = append(warnings, Warning{Path: relPath, Err: statErr})
				return nil
			}
			if target.IsDir() {
				// Directory symlinks are skipped entirely to avoid cycles.
				return nil
			}
			info = target
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		if matcher.Match(domain, false) {
			return nil
		}

		f, openErr := os.Open(path)
		if openErr != nil {
			warnings = append(warnings, Warning{Path: relPath, Err: openErr})
			return nil
		}

		entry := Entry{Path: relPath, Mode: info.Mode(), Size: info.Size()}
		visitErr := visit(entry, f)
		_ = f.Close()
		if visitErr != nil {
			return fmt.Errorf("visit %s: %w", relPath, visitErr)
		}
		return nil
	})
	if walkErr != nil {
		return warnings, walkErr
	}

	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Path < warnings[j].Path })
	return warnings, nil
}

func isAlwaysExcludedDir(name string) bool {
	for _, d := range AlwaysExcludedDirs {
		if name == d {
			return true
		}
	}
	return false
}

// loadPatterns parses a gitignore-format file at path, scoping patterns to
// domain (nil for tree-wide).
func loadPatterns(path string, domain []string) ([]gitignore.Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, domain))
	}
	return patterns, nil
}
