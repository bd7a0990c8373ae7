package message

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRoutine(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0755); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverRoutines_ShellOnly(t *testing.T) {
	dir := t.TempDir()
	writeRoutine(t, dir, "develop.sh", "#!/bin/bash\n# Develop routine\necho hi\n")
	writeRoutine(t, dir, "triage.sh", "#!/bin/bash\n# Triage routine\necho hi\n")

	routines, err := DiscoverRoutines(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(routines) != 2 {
		t.Fatalf("got %d routines, want 2: %+v", len(routines), routines)
	}
	if routines[0].Name != "develop" || routines[1].Name != "triage" {
		t.Errorf("routines not sorted by name: %+v", routines)
	}
}

func TestDiscoverRoutines_NotebooksHiddenWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	writeRoutine(t, dir, "develop.ipynb", `{"cells":[]}`)

	routines, err := DiscoverRoutines(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(routines) != 0 {
		t.Fatalf("expected notebooks hidden, got %+v", routines)
	}
}

func TestDiscoverRoutines_NotebookPrecedenceOverShell(t *testing.T) {
	dir := t.TempDir()
	writeRoutine(t, dir, "develop.sh", "#!/bin/bash\necho shell\n")
	writeRoutine(t, dir, "develop.ipynb", `{"cells":[]}`)

	routines, err := DiscoverRoutines(dir, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(routines) != 1 {
		t.Fatalf("expected dedup by stem, got %+v", routines)
	}
	if routines[0].Ext != notebookExt {
		t.Errorf("ext = %q, want notebook to take precedence", routines[0].Ext)
	}
}

func TestDiscoverRoutines_MissingDir(t *testing.T) {
	routines, err := DiscoverRoutines(filepath.Join(t.TempDir(), "missing"), false)
	if err != nil {
		t.Fatal(err)
	}
	if routines != nil {
		t.Errorf("expected nil routines for missing dir, got %+v", routines)
	}
}

func TestLookupRoutine_ExplicitExtensionBypassesPrecedence(t *testing.T) {
	routines := []RoutineInfo{
		{Name: "develop", Ext: shellExt, Path: "/routines/develop.sh"},
		{Name: "develop", Ext: notebookExt, Path: "/routines/develop.ipynb"},
	}

	r, ok := LookupRoutine(routines, "develop.sh")
	if !ok || r.Ext != shellExt {
		t.Errorf("LookupRoutine(develop.sh) = %+v, %v, want shell form", r, ok)
	}

	r, ok = LookupRoutine(routines, "develop")
	if !ok {
		t.Fatal("expected bare name to resolve")
	}
	_ = r
}

func TestShellDescription(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "shebang then comments",
			content: "#!/bin/bash\n# Develop routine\n# Applies changes to satisfy a task.\nspec_file=\necho hi\n",
			want:    "Develop routine\nApplies changes to satisfy a task.",
		},
		{
			name:    "no shebang",
			content: "# Quick triage\nmessage_file=\necho hi\n",
			want:    "Quick triage",
		},
		{
			name:    "no comments",
			content: "#!/bin/bash\necho hi\n",
			want:    "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := shellDescription([]byte(tc.content))
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNotebookDescription_FirstMarkdownCell(t *testing.T) {
	doc := `{
		"cells": [
			{"cell_type": "code", "source": ["x = 1"]},
			{"cell_type": "markdown", "source": ["# Triage\n", "Routes messages.\n"]},
			{"cell_type": "markdown", "source": ["second doc cell, ignored"]}
		]
	}`
	got, err := notebookDescription([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	want := "# Triage\nRoutes messages.\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNotebookDescription_NoMarkdownCell(t *testing.T) {
	doc := `{"cells": [{"cell_type": "code", "source": ["x = 1"]}]}`
	got, err := notebookDescription([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
