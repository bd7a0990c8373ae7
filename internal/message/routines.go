package message

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Shell and notebook executor extensions recognized during routine
// discovery.
const (
	shellExt    = ".sh"
	notebookExt = ".ipynb"
)

// RoutineInfo describes one discovered routine executor.
type RoutineInfo struct {
	// Name is the executor's filename stem, used as the routine name.
	Name string

	// Path is the absolute path to the executor file.
	Path string

	// Ext is the executor's format: ".sh" or ".ipynb".
	Ext string

	// Description is the routine's short description, used in router AI
	// prompts and interactive listings.
	Description string
}

// DiscoverRoutines scans dir for shell-script executors and, when
// notebookSupport is enabled, notebook executors, deduplicating by stem.
// When both formats exist for the same stem and notebooks are enabled,
// the notebook form takes precedence; the result is sorted by name for
// deterministic listings and router prompts.
func DiscoverRoutines(dir string, notebookSupport bool) ([]RoutineInfo, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	byStem := make(map[string]RoutineInfo)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)

		switch ext {
		case shellExt:
			if _, exists := byStem[stem]; exists {
				continue
			}
			byStem[stem] = RoutineInfo{Name: stem, Path: filepath.Join(dir, name), Ext: shellExt}
		case notebookExt:
			if !notebookSupport {
				continue
			}
			byStem[stem] = RoutineInfo{Name: stem, Path: filepath.Join(dir, name), Ext: notebookExt}
		}
	}

	routines := make([]RoutineInfo, 0, len(byStem))
	for _, r := range byStem {
		desc, err := describeRoutine(r)
		if err != nil {
			// A routine whose description can't be read is still usable
			// for execution; it just lists with no description.
			desc = ""
		}
		r.Description = desc
		routines = append(routines, r)
	}

	sort.Slice(routines, func(i, j int) bool { return routines[i].Name < routines[j].Name })
	return routines, nil
}

// LookupRoutine finds a discovered routine by name, honoring an explicit
// extension override (e.g. "develop.sh") that bypasses the notebook
// precedence DiscoverRoutines otherwise applies.
func LookupRoutine(routines []RoutineInfo, name string) (RoutineInfo, bool) {
	if ext := filepath.Ext(name); ext == shellExt || ext == notebookExt {
		stem := strings.TrimSuffix(name, ext)
		for _, r := range routines {
			if r.Name == stem && r.Ext == ext {
				return r, true
			}
		}
		// DiscoverRoutines drops the shell form of a stem whose notebook form
		// took precedence; an explicit ".sh" still finds it beside the notebook.
		if ext == shellExt {
			for _, r := range routines {
				if r.Name == stem && r.Ext == notebookExt {
					path := filepath.Join(filepath.Dir(r.Path), name)
					if info, err := os.Stat(path); err == nil && !info.IsDir() {
						return RoutineInfo{Name: stem, Path: path, Ext: shellExt}, true
					}
				}
			}
		}
		return RoutineInfo{}, false
	}
	for _, r := range routines {
		if r.Name == name {
			return r, true
		}
	}
	return RoutineInfo{}, false
}

// describeRoutine extracts a routine's short description per its format.
func describeRoutine(r RoutineInfo) (string, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return "", err
	}
	switch r.Ext {
	case notebookExt:
		return notebookDescription(data)
	default:
		return shellDescription(data)
	}
}

// shellDescription returns the contiguous comment-prefixed lines at the
// top of a shell executor, after skipping an optional interpreter
// directive, with the comment marker stripped.
func shellDescription(data []byte) (string, error) {
	lines := strings.Split(string(data), "\n")
	i := 0
	if len(lines) > 0 && strings.HasPrefix(lines[0], "#!") {
		i = 1
	}

	var desc []string
	for ; i < len(lines); i++ {
		line := lines[i]
		if !strings.HasPrefix(strings.TrimLeft(line, " \t"), "#") {
			break
		}
		trimmed := strings.TrimLeft(line, " \t")
		trimmed = strings.TrimPrefix(trimmed, "#")
		trimmed = strings.TrimPrefix(trimmed, " ")
		desc = append(desc, trimmed)
	}
	return strings.Join(desc, "\n"), nil
}

// notebookCell mirrors the fields of a Jupyter notebook cell this package
// reads; everything else in the document is ignored.
type notebookCell struct {
	CellType string          `json:"cell_type"`
	Source   json.RawMessage `json:"source"`
	Metadata struct {
		Tags []string `json:"tags"`
	} `json:"metadata"`
}

type notebookDoc struct {
	Cells []notebookCell `json:"cells"`
}

// notebookDescription returns the joined source of the first markdown
// (documentation) cell in a notebook executor.
func notebookDescription(data []byte) (string, error) {
	var nb notebookDoc
	if err := json.Unmarshal(data, &nb); err != nil {
		return "", err
	}
	for _, c := range nb.Cells {
		if c.CellType != "markdown" {
			continue
		}
		return cellSource(c.Source), nil
	}
	return "", nil
}

// cellSource normalizes a notebook cell's source field, which the Jupyter
// format allows to be either a single string or a list of lines.
func cellSource(raw json.RawMessage) string {
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, "")
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	return ""
}
