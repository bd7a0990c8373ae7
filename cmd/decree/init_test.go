package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jtmckay/decree/internal/storage"
)

func withTempCwd(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
	if err := os.Chdir(tmp); err != nil {
		t.Fatal(err)
	}
	return tmp
}

func TestRunInitCreatesDirs(t *testing.T) {
	tmp := withTempCwd(t)
	dryRun = false

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	for _, dir := range []string{
		storage.RoutinesDir,
		storage.PlansDir,
		storage.CronDir,
		storage.InboxDir,
		storage.InboxDoneDir,
		storage.InboxDeadDir,
		storage.RunsDir,
		storage.SessionsDir,
	} {
		target := filepath.Join(tmp, ".decree", dir)
		if _, err := os.Stat(target); os.IsNotExist(err) {
			t.Errorf("expected dir %s to exist", target)
		}
	}
}

func TestRunInitGitignore(t *testing.T) {
	tmp := withTempCwd(t)
	dryRun = false

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmp, ".decree", ".gitignore"))
	if err != nil {
		t.Fatalf("expected .decree/.gitignore to exist: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "*") {
		t.Error("expected deny-all pattern")
	}
	if !strings.Contains(content, "!.gitignore") {
		t.Error("expected !.gitignore exception")
	}
}

func TestRunInitIdempotent(t *testing.T) {
	withTempCwd(t)
	dryRun = false

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("first runInit: %v", err)
	}
	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("second runInit: %v", err)
	}
}

func TestRunInitDryRun(t *testing.T) {
	tmp := withTempCwd(t)

	dryRun = true
	defer func() { dryRun = false }()

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit dry-run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmp, ".decree")); err == nil {
		t.Error("expected .decree NOT to exist in dry-run")
	}
}

func TestRunInitDryRun_AlreadyInitialized(t *testing.T) {
	withTempCwd(t)
	dryRun = false

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	dryRun = true
	defer func() { dryRun = false }()
	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit dry-run (already initialized): %v", err)
	}
}

func TestRunInitNoVCSDependency(t *testing.T) {
	// decree init must succeed in a directory with no .git at all, and
	// must not shell out to any VCS tool.
	tmp := withTempCwd(t)
	dryRun = false

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit without .git: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmp, ".decree", storage.RunsDir)); err != nil {
		t.Errorf("expected runs dir to exist: %v", err)
	}
}
