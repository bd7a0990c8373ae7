package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCountEntries(t *testing.T) {
	t.Run("counts files, ignores dirs", func(t *testing.T) {
		tmp := t.TempDir()
		if err := os.WriteFile(filepath.Join(tmp, "a.md"), []byte("a"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(tmp, "b.md"), []byte("b"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.MkdirAll(filepath.Join(tmp, "subdir"), 0755); err != nil {
			t.Fatal(err)
		}

		if got := countEntries(tmp); got != 2 {
			t.Errorf("countEntries() = %d, want 2", got)
		}
	})

	t.Run("nonexistent dir returns 0", func(t *testing.T) {
		if got := countEntries(filepath.Join(t.TempDir(), "missing")); got != 0 {
			t.Errorf("countEntries() = %d, want 0", got)
		}
	})

	t.Run("empty dir returns 0", func(t *testing.T) {
		if got := countEntries(t.TempDir()); got != 0 {
			t.Errorf("countEntries() = %d, want 0", got)
		}
	})
}

func TestOutputStatus_NotInitialized(t *testing.T) {
	status := &statusOutput{Initialized: false, BaseDir: "/tmp/.decree"}
	if err := outputStatus(status); err != nil {
		t.Errorf("outputStatus() error = %v", err)
	}
}

func TestOutputStatus_Initialized(t *testing.T) {
	status := &statusOutput{
		Initialized: true,
		BaseDir:     "/tmp/.decree",
		InboxCount:  2,
		DoneCount:   5,
		DeadCount:   1,
		RunCount:    8,
		RecentRuns:  []string{"20260115103000010-0", "20260115103000010-1"},
	}
	if err := outputStatus(status); err != nil {
		t.Errorf("outputStatus() error = %v", err)
	}
}
