package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRevert_RestoresModifiedFile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.txt": "hello\nworld\n"})
	copyDir := t.TempDir()
	pre, _, err := Snapshot(root, Options{}, copyDir)
	if err != nil {
		t.Fatal(err)
	}

	writeFiles(t, root, map[string]string{"a.txt": "hello\nthere\n"})
	diff, _, err := Diff(copyDir, root, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if err := Revert(diff, root, pre, Options{}); err != nil {
		t.Fatalf("Revert: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello\nworld\n" {
		t.Errorf("content = %q, want original content restored", data)
	}
}

func TestRevert_UndoesCreate(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.txt": "hello"})
	copyDir := t.TempDir()
	pre, _, err := Snapshot(root, Options{}, copyDir)
	if err != nil {
		t.Fatal(err)
	}

	writeFiles(t, root, map[string]string{"new.txt": "fresh"})
	diff, _, err := Diff(copyDir, root, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if err := Revert(diff, root, pre, Options{}); err != nil {
		t.Fatalf("Revert: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "new.txt")); !os.IsNotExist(err) {
		t.Error("expected created file to be removed by revert")
	}
}

func TestRevert_UndoesDelete(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"gone.txt": "bye"})
	copyDir := t.TempDir()
	pre, _, err := Snapshot(root, Options{}, copyDir)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(root, "gone.txt")); err != nil {
		t.Fatal(err)
	}
	diff, _, err := Diff(copyDir, root, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if err := Revert(diff, root, pre, Options{}); err != nil {
		t.Fatalf("Revert: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "gone.txt"))
	if err != nil {
		t.Fatalf("expected gone.txt to be restored: %v", err)
	}
	if string(data) != "bye" {
		t.Errorf("content = %q, want bye", data)
	}
}

func TestRevert_IntegrityViolation(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.txt": "hello\nworld\n"})
	copyDir := t.TempDir()
	pre, _, err := Snapshot(root, Options{}, copyDir)
	if err != nil {
		t.Fatal(err)
	}

	writeFiles(t, root, map[string]string{"a.txt": "hello\nthere\n"})
	diff, _, err := Diff(copyDir, root, Options{})
	if err != nil {
		t.Fatal(err)
	}

	// Tamper with the pre-execution manifest so the post-revert integrity
	// check cannot possibly match, simulating external interference.
	tampered := NewManifest()
	for k, v := range pre.Files {
		tampered.Files[k] = v
	}
	tampered.Files["a.txt"] = FileMeta{Hash: "0000000000000000000000000000000000000000000000000000000000000000", Mode: 0644, Size: 99}

	err = Revert(diff, root, tampered, Options{})
	if err == nil {
		t.Fatal("expected IntegrityViolation")
	}
	if _, ok := err.(*IntegrityViolation); !ok {
		t.Errorf("expected *IntegrityViolation, got %T: %v", err, err)
	}
}
