package message

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalize_DerivesChainAndSeqFromFilename(t *testing.T) {
	dir := t.TempDir()
	path := writeMessage(t, dir, "2026010112000001-0.task", "do the thing\n")

	res, err := Normalize(path, Options{ExplicitRoutineSelected: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Message.Chain != "2026010112000001" {
		t.Errorf("chain = %q, want 2026010112000001", res.Message.Chain)
	}
	if res.Message.Seq != 0 {
		t.Errorf("seq = %d, want 0", res.Message.Seq)
	}
	if res.Message.ID != "2026010112000001-0" {
		t.Errorf("id = %q, want 2026010112000001-0", res.Message.ID)
	}
	if !res.Rewrote {
		t.Error("expected rewrite: header was entirely absent")
	}
}

func TestNormalize_HeaderWinsOnChainMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeMessage(t, dir, "2026010112000001-0.task",
		"---\nchain: 9999010112000099\nseq: 0\n---\nbody\n")

	res, err := Normalize(path, Options{ExplicitRoutineSelected: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Message.Chain != "9999010112000099" {
		t.Errorf("chain = %q, want header value to win", res.Message.Chain)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Field != "chain" {
		t.Fatalf("expected one chain warning, got %+v", res.Warnings)
	}
}

func TestNormalize_MintsNewChainWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	path := writeMessage(t, dir, "freeform.task", "body\n")

	res, err := Normalize(path, Options{ExplicitRoutineSelected: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Message.Chain) != 16 {
		t.Errorf("minted chain = %q, want 16 characters", res.Message.Chain)
	}
	if res.Message.Seq != 0 {
		t.Errorf("seq = %d, want 0 for a freshly minted chain", res.Message.Seq)
	}
}

func TestNormalize_InfersSpecType(t *testing.T) {
	dir := t.TempDir()
	path := writeMessage(t, dir, "2026010112000001-0.spec",
		"---\ninput_file: specs/01-x.spec.md\n---\nbody\n")

	res, err := Normalize(path, Options{ExplicitRoutineSelected: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Message.Type != "spec" {
		t.Errorf("type = %q, want spec", res.Message.Type)
	}
}

func TestNormalize_DefaultsToTaskType(t *testing.T) {
	dir := t.TempDir()
	path := writeMessage(t, dir, "2026010112000001-0.task", "body\n")

	res, err := Normalize(path, Options{ExplicitRoutineSelected: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Message.Type != "task" {
		t.Errorf("type = %q, want task", res.Message.Type)
	}
}

func TestNormalize_RoutineLiteralFallback(t *testing.T) {
	dir := t.TempDir()
	path := writeMessage(t, dir, "2026010112000001-0.task", "body\n")

	res, err := Normalize(path, Options{ExplicitRoutineSelected: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Message.Routine != "develop" {
		t.Errorf("routine = %q, want literal fallback develop", res.Message.Routine)
	}
}

func TestNormalize_RoutineFromSpecFrontmatter(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "specs"), 0755); err != nil {
		t.Fatal(err)
	}
	writeMessage(t, dir, filepath.Join("specs", "01-x.spec.md"), "---\nroutine: release\n---\nadd a file\n")
	path := writeMessage(t, dir, "2026010112000001-0.spec",
		"---\ninput_file: specs/01-x.spec.md\n---\nbody\n")

	res, err := Normalize(path, Options{Root: dir, ExplicitRoutineSelected: true, DefaultRoutine: "develop"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Message.Routine != "release" {
		t.Errorf("routine = %q, want spec frontmatter value release", res.Message.Routine)
	}
}

func TestNormalize_RoutineConfiguredDefault(t *testing.T) {
	dir := t.TempDir()
	path := writeMessage(t, dir, "2026010112000001-0.task", "body\n")

	res, err := Normalize(path, Options{ExplicitRoutineSelected: true, DefaultRoutine: "review"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Message.Routine != "review" {
		t.Errorf("routine = %q, want configured default review", res.Message.Routine)
	}
}

func TestNormalize_RouterRecognizedRoutineWins(t *testing.T) {
	dir := t.TempDir()
	path := writeMessage(t, dir, "2026010112000001-0.task", "body\n")

	routines := []RoutineInfo{{Name: "triage"}, {Name: "develop"}}
	router := func(body string, rs []RoutineInfo) (string, error) { return "triage", nil }

	res, err := Normalize(path, Options{Routines: routines, Router: router, DefaultRoutine: "develop"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Message.Routine != "triage" {
		t.Errorf("routine = %q, want router's choice triage", res.Message.Routine)
	}
}

func TestNormalize_UnrecognizedRouterFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	path := writeMessage(t, dir, "2026010112000001-0.task", "body\n")

	routines := []RoutineInfo{{Name: "develop"}}
	router := func(body string, rs []RoutineInfo) (string, error) { return "nonsense-routine", nil }

	res, err := Normalize(path, Options{Routines: routines, Router: router, DefaultRoutine: "develop"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Message.Routine != "develop" {
		t.Errorf("routine = %q, want fallback to configured default", res.Message.Routine)
	}
}

func TestNormalize_NoRewriteWhenAlreadyComplete(t *testing.T) {
	dir := t.TempDir()
	content := "---\nid: 2026010112000001-0\nchain: 2026010112000001\nseq: 0\ntype: task\nroutine: develop\n---\nbody\n"
	path := writeMessage(t, dir, "2026010112000001-0.task", content)

	res, err := Normalize(path, Options{ExplicitRoutineSelected: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Rewrote {
		t.Error("expected no rewrite when header already fully resolved")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != content {
		t.Error("file content changed despite no-op normalization")
	}
}

func TestNormalize_PreservesBodyExactly(t *testing.T) {
	dir := t.TempDir()
	body := "line one\nline two\n\nline four\n"
	path := writeMessage(t, dir, "freeform.task", body)

	res, err := Normalize(path, Options{ExplicitRoutineSelected: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Message.Body != body {
		t.Errorf("body = %q, want unchanged %q", res.Message.Body, body)
	}

	pf, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if pf.Body != body {
		t.Errorf("rewritten file body = %q, want unchanged %q", pf.Body, body)
	}
}

func TestFilenameChainSeq(t *testing.T) {
	tests := []struct {
		path      string
		wantChain string
		wantSeq   int
		wantOK    bool
	}{
		{path: "2026010112000001-0.task", wantChain: "2026010112000001", wantSeq: 0, wantOK: true},
		{path: "2026010112000001-12.spec", wantChain: "2026010112000001", wantSeq: 12, wantOK: true},
		{path: filepath.Join("inbox", "2026010112000001-3.task"), wantChain: "2026010112000001", wantSeq: 3, wantOK: true},
		{path: "freeform.task", wantOK: false},
		{path: "not-enough-digits-0.task", wantOK: false},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			chain, seq, ok := filenameChainSeq(tc.path)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if chain != tc.wantChain || seq != tc.wantSeq {
				t.Errorf("got (%q, %d), want (%q, %d)", chain, seq, tc.wantChain, tc.wantSeq)
			}
		})
	}
}

func TestNewChainID_Format(t *testing.T) {
	id := NewChainID()
	if len(id) != 16 {
		t.Fatalf("chain id %q has length %d, want 16", id, len(id))
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			t.Fatalf("chain id %q contains non-digit %q", id, c)
		}
	}
}

func TestNewChainID_DistinctWithinSameSecond(t *testing.T) {
	a := NewChainID()
	b := NewChainID()
	if a == b {
		t.Error("expected distinct chain ids from consecutive calls")
	}
}
