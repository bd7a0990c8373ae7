// Package routine discovers a routine executor's declared parameters and
// invokes it with a bound environment, collecting its output into the
// owning message's run directory.
package routine

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"

	"github.com/jtmckay/decree/internal/message"
)

// StandardParams are bound from the run context rather than the message's
// extra fields, and are excluded from a routine's custom parameter set.
var StandardParams = map[string]bool{
	"spec_file":   true,
	"message_file": true,
	"message_id":  true,
	"message_dir": true,
	"chain":       true,
	"seq":         true,
}

// Param is one custom parameter a routine declares, with its default
// value taken from the executor's own source.
type Param struct {
	Name    string
	Default string
}

// assignPattern matches a shell-style parameter declaration:
// ^[a-z_][a-z0-9_]*=...
var assignPattern = regexp.MustCompile(`^([a-z_][a-z0-9_]*)=(.*)$`)

// DiscoverParams returns r's custom parameter set: every declared
// parameter not in StandardParams.
func DiscoverParams(r message.RoutineInfo) ([]Param, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, err
	}
	if r.Ext == ".ipynb" {
		return notebookParams(data)
	}
	return shellParams(data), nil
}

// shellParams scans the lines at the head of a shell executor, skipping an
// optional interpreter directive, collecting assignment lines until the
// first line that is neither blank, a comment, nor an assignment.
func shellParams(data []byte) []Param {
	lines := strings.Split(string(data), "\n")
	i := 0
	if len(lines) > 0 && strings.HasPrefix(lines[0], "#!") {
		i = 1
	}

	var params []Param
	for ; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, "#"):
			continue
		}
		m := assignPattern.FindStringSubmatch(line)
		if m == nil {
			break
		}
		name := m[1]
		if StandardParams[name] {
			continue
		}
		params = append(params, Param{Name: name, Default: unquote(m[2])})
	}
	return params
}

// notebookParameterCell mirrors the fields DiscoverParams needs from a
// papermill-style "parameters" cell.
type notebookParameterCell struct {
	CellType string          `json:"cell_type"`
	Source   json.RawMessage `json:"source"`
	Metadata struct {
		Tags []string `json:"tags"`
	} `json:"metadata"`
}

type notebookParamsDoc struct {
	Cells []notebookParameterCell `json:"cells"`
}

// notebookParams finds the cell tagged "parameters" and parses each
// assignment line within it; spaces around the "=" are allowed.
func notebookParams(data []byte) ([]Param, error) {
	var nb notebookParamsDoc
	if err := json.Unmarshal(data, &nb); err != nil {
		return nil, err
	}
	notebookAssign := regexp.MustCompile(`^([a-z_][a-z0-9_]*)\s*=\s*(.*)$`)

	var params []Param
	for _, c := range nb.Cells {
		if !hasTag(c.Metadata.Tags, "parameters") {
			continue
		}
		for _, line := range notebookSourceLines(c.Source) {
			m := notebookAssign.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				continue
			}
			name := m[1]
			if StandardParams[name] {
				continue
			}
			params = append(params, Param{Name: name, Default: unquote(m[2])})
		}
		break
	}
	return params, nil
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

// notebookSourceLines normalizes a notebook cell's source field, which the
// Jupyter format allows to be a single string or a list of lines.
func notebookSourceLines(raw json.RawMessage) []string {
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		var out []string
		for _, l := range lines {
			out = append(out, strings.Split(l, "\n")...)
		}
		return out
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.Split(single, "\n")
	}
	return nil
}

// unquote strips a single layer of matching quotes from a shell default
// value, leaving unquoted values untouched.
func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
