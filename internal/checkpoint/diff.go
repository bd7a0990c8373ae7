package checkpoint

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/jtmckay/decree/internal/walk"
)

// binarySniffLen is the number of leading bytes inspected for a null byte
// when classifying a file as text or binary.
const binarySniffLen = 8192

// Kind classifies a Hunk's change.
type Kind string

const (
	KindCreate Kind = "create"
	KindDelete Kind = "delete"
	KindModify Kind = "modify"
)

// Hunk is one file's change between a checkpoint's pre-execution tree and
// the live working tree. PreContent and PostContent hold the full file
// content on the side(s) that exist, so Apply and Revert can verify and
// reconstruct exactly without re-parsing a textual patch. UnifiedText is a
// standard unified diff rendering of the same change, used to build the
// human- and tool-readable document RenderUnifiedDocument produces; text
// hunks only, since line-oriented diffs don't apply to binary content.
type Hunk struct {
	Path        string      `json:"path"`
	Kind        Kind        `json:"kind"`
	Binary      bool        `json:"binary"`
	Mode        os.FileMode `json:"mode"`
	PreContent  []byte      `json:"pre_content,omitempty"`
	PostContent []byte      `json:"post_content,omitempty"`
	UnifiedText string      `json:"unified_text,omitempty"`
}

// Diff re-walks root and compares it against preDir, the exact pre-execution
// tree copy produced by Snapshot's copyDir, classifying each path as create,
// delete, or modify and producing one Hunk per change. Paths present in both
// trees with identical content are omitted. The result is a JSON-Lines
// document, one hunk per line, in lexicographic path order: this is Apply
// and Revert's internal working format, carrying full pre/post file content
// for exact reconstruction. It is not the externally-facing changes.diff
// document; callers that persist or print a diff for a human or another
// diff tool to read should run this result through RenderUnifiedDocument
// first (see ParseHunks).
func Diff(preDir, root string, opts Options) (string, []walk.Warning, error) {
	preFiles, err := listAll(preDir)
	if err != nil {
		return "", nil, fmt.Errorf("list pre tree: %w", err)
	}

	postFiles, warnings, err := listFiltered(root, opts)
	if err != nil {
		return "", warnings, fmt.Errorf("list post tree: %w", err)
	}

	paths := unionPaths(preFiles, postFiles)

	var buf bytes.Buffer
	for _, p := range paths {
		preMode, inPre := preFiles[p]
		postMode, inPost := postFiles[p]

		var hunk *Hunk
		switch {
		case inPre && !inPost:
			hunk, err = buildHunk(p, KindDelete, preMode, filepath.Join(preDir, p), "")
		case !inPre && inPost:
			hunk, err = buildHunk(p, KindCreate, postMode, "", filepath.Join(root, p))
		default:
			var identical bool
			identical, err = filesIdentical(filepath.Join(preDir, p), filepath.Join(root, p))
			if err != nil {
				return "", warnings, fmt.Errorf("compare %s: %w", p, err)
			}
			if identical {
				continue
			}
			hunk, err = buildHunk(p, KindModify, postMode, filepath.Join(preDir, p), filepath.Join(root, p))
		}
		if err != nil {
			return "", warnings, fmt.Errorf("diff %s: %w", p, err)
		}

		data, mErr := json.Marshal(hunk)
		if mErr != nil {
			return "", warnings, fmt.Errorf("marshal hunk %s: %w", p, mErr)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	return buf.String(), warnings, nil
}

func buildHunk(path string, kind Kind, mode os.FileMode, prePath, postPath string) (*Hunk, error) {
	var preContent, postContent []byte
	var err error
	if prePath != "" {
		preContent, err = os.ReadFile(prePath)
		if err != nil {
			return nil, err
		}
	}
	if postPath != "" {
		postContent, err = os.ReadFile(postPath)
		if err != nil {
			return nil, err
		}
	}

	binary := isBinary(preContent) || isBinary(postContent)

	h := &Hunk{Path: path, Kind: kind, Binary: binary, Mode: mode, PreContent: preContent, PostContent: postContent}
	if !binary {
		h.UnifiedText = renderUnified(path, kind, preContent, postContent)
	}
	return h, nil
}

// diffLabels returns the "a/" and "b/" side labels a unified diff header
// uses for path, substituting /dev/null on the side that doesn't exist
// (create has no pre-image, delete has no post-image), matching the
// convention mainstream diff tools and viewers already expect.
func diffLabels(path string, kind Kind) (string, string) {
	from, to := "a/"+path, "b/"+path
	if kind == KindCreate {
		from = "/dev/null"
	}
	if kind == KindDelete {
		to = "/dev/null"
	}
	return from, to
}

func renderUnified(path string, kind Kind, pre, post []byte) string {
	from, to := diffLabels(path, kind)
	edits := myers.ComputeEdits(span.URIFromPath(path), string(pre), string(post))
	unified := gotextdiff.ToUnified(from, to, string(pre), edits)
	return fmt.Sprint(unified)
}

// RenderUnifiedDocument concatenates hunks into decree's changes.diff
// format: a standard textual unified diff covering every text hunk (create,
// modify, delete), with binary changes represented by the same "Binary
// files ... differ" marker line mainstream diff tools emit for a binary
// change, followed by the full pre/post content base64-encoded so the
// change is still recoverable from the document alone.
func RenderUnifiedDocument(hunks []Hunk) string {
	var buf bytes.Buffer
	for _, h := range hunks {
		if !h.Binary {
			buf.WriteString(h.UnifiedText)
			continue
		}
		from, to := diffLabels(h.Path, h.Kind)
		fmt.Fprintf(&buf, "Binary files %s and %s differ\n", from, to)
		if len(h.PreContent) > 0 {
			fmt.Fprintf(&buf, "decree-binary-pre %s\n%s\n", h.Path, base64.StdEncoding.EncodeToString(h.PreContent))
		}
		if len(h.PostContent) > 0 {
			fmt.Fprintf(&buf, "decree-binary-post %s\n%s\n", h.Path, base64.StdEncoding.EncodeToString(h.PostContent))
		}
	}
	return buf.String()
}

// isBinary applies a null-byte heuristic over the first binarySniffLen
// bytes: any NUL byte marks the content as binary.
func isBinary(content []byte) bool {
	n := len(content)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	for i := 0; i < n; i++ {
		if content[i] == 0 {
			return true
		}
	}
	return false
}

func filesIdentical(a, b string) (bool, error) {
	ah, err := streamHash(a)
	if err != nil {
		return false, err
	}
	bh, err := streamHash(b)
	if err != nil {
		return false, err
	}
	return ah == bh, nil
}

// listAll recursively lists every regular file under dir with no ignore
// filtering — used for preDir, which is already a filtered checkpoint copy.
func listAll(dir string) (map[string]os.FileMode, error) {
	files := make(map[string]os.FileMode)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		files[filepath.ToSlash(rel)] = info.Mode()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// listFiltered lists the files the ignore-aware walker would visit, without
// reading their content.
func listFiltered(root string, opts Options) (map[string]os.FileMode, []walk.Warning, error) {
	w := walk.New(root, opts.RuntimeDirName)
	w.OverrideFile = opts.OverrideFile

	files := make(map[string]os.FileMode)
	warnings, err := w.Walk(func(e walk.Entry, r io.Reader) error {
		files[e.Path] = e.Mode
		return nil
	})
	if err != nil {
		return nil, warnings, err
	}
	return files, warnings, nil
}

func unionPaths(a, b map[string]os.FileMode) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for p := range a {
		set[p] = struct{}{}
	}
	for p := range b {
		set[p] = struct{}{}
	}
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
