// Package checkpoint implements the tree-snapshot, diff, apply, and revert
// operations the pipeline uses to isolate a routine's filesystem changes and
// make them reviewable, reapplicable, and reversible.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/jtmckay/decree/internal/walk"
	"github.com/jtmckay/decree/internal/worker"
)

// FileMeta is the per-file record held in a Manifest.
type FileMeta struct {
	Hash string      `json:"hash"`
	Mode os.FileMode `json:"mode"`
	Size int64       `json:"size"`
}

// Manifest is a content-addressed snapshot of a directory tree: one entry
// per file, keyed by its slash-separated path relative to the tree root.
type Manifest struct {
	Files map[string]FileMeta `json:"files"`
}

// NewManifest returns an empty Manifest.
func NewManifest() *Manifest {
	return &Manifest{Files: make(map[string]FileMeta)}
}

// Marshal serializes the manifest to JSON.
func (m *Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// UnmarshalManifest parses a JSON-serialized manifest.
func UnmarshalManifest(data []byte) (*Manifest, error) {
	m := NewManifest()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	if m.Files == nil {
		m.Files = make(map[string]FileMeta)
	}
	return m, nil
}

// SortedPaths returns the manifest's paths in lexicographic order.
func (m *Manifest) SortedPaths() []string {
	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Options configures the ignore-aware walk performed by Snapshot and Diff.
type Options struct {
	// RuntimeDirName is always excluded (the tool's own runtime directory).
	RuntimeDirName string

	// OverrideFile is an optional project-local ignore file, relative to
	// the tree root, applied tree-wide in addition to hierarchical
	// .gitignore files.
	OverrideFile string
}

// Snapshot walks root honoring opts and builds a Manifest, hashing file
// contents in parallel across available CPUs. When copyDir is non-empty,
// each file is also copied there (preserving its relative path) in the same
// streamed read used to compute its digest, so Diff and Revert can later
// compare against the exact pre-execution tree without needing the live
// working tree to still hold the old content.
func Snapshot(root string, opts Options, copyDir string) (*Manifest, []walk.Warning, error) {
	w := walk.New(root, opts.RuntimeDirName)
	w.OverrideFile = opts.OverrideFile

	var paths []string
	modes := make(map[string]os.FileMode)
	warnings, err := w.Walk(func(e walk.Entry, r io.Reader) error {
		paths = append(paths, e.Path)
		modes[e.Path] = e.Mode
		return nil
	})
	if err != nil {
		return nil, warnings, fmt.Errorf("snapshot walk: %w", err)
	}

	pool := worker.NewPool[FileMeta](0)
	results := pool.Process(paths, func(relPath string) (FileMeta, error) {
		return snapshotFile(root, relPath, modes[relPath], copyDir)
	})

	manifest := NewManifest()
	for i, res := range results {
		if res.Err != nil {
			return nil, warnings, fmt.Errorf("snapshot %s: %w", paths[i], res.Err)
		}
		manifest.Files[paths[i]] = res.Value
	}
	return manifest, warnings, nil
}

func snapshotFile(root, relPath string, mode os.FileMode, copyDir string) (FileMeta, error) {
	src, err := os.Open(filepath.Join(root, relPath))
	if err != nil {
		return FileMeta{}, err
	}
	defer func() {
		_ = src.Close()
	}()

	h := sha256.New()
	var w io.Writer = h

	if copyDir != "" {
		destPath := filepath.Join(copyDir, relPath)
		if err := os.MkdirAll(filepath.Dir(destPath), 0700); err != nil {
			return FileMeta{}, err
		}
		dst, err := os.Create(destPath)
		if err != nil {
			return FileMeta{}, err
		}
		defer func() {
			_ = dst.Close()
		}()
		w = io.MultiWriter(h, dst)
	}

	size, err := io.Copy(w, src)
	if err != nil {
		return FileMeta{}, err
	}

	return FileMeta{Hash: hex.EncodeToString(h.Sum(nil)), Mode: mode, Size: size}, nil
}

// streamHash computes the sha256 digest of path without buffering its
// content in memory.
func streamHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
