package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jtmckay/decree/internal/config"
	"github.com/jtmckay/decree/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize decree in the current directory",
	Long: `Set up the decree runtime directory in the current directory.

This creates:
  .decree/routines/      - Shell and notebook routine executors
  .decree/plans/         - Planning-AI collaborator artifacts
  .decree/cron/          - Cron entry files
  .decree/inbox/         - Pending messages
  .decree/inbox/done/    - Successfully dispositioned messages
  .decree/inbox/dead/    - Dead-lettered messages
  .decree/runs/          - Per-message run directories
  .decree/sessions/      - REPL collaborator session state

Decree does not depend on or inspect any source-control tool; the
runtime directory is plain files managed entirely by decree itself.

Run in your project root. Safe to run multiple times (idempotent).`,
	RunE: runInit,
}

func init() {
	initCmd.GroupID = "core"
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	baseDir := config.RuntimeDir(cwd)

	if dryRun {
		if _, err := os.Stat(baseDir); os.IsNotExist(err) {
			fmt.Printf("[dry-run] Would create %s/{routines,plans,cron,inbox,runs,sessions}\n", config.RuntimeDirName)
		} else {
			fmt.Printf("[dry-run] %s already initialized\n", config.RuntimeDirName)
		}
		return nil
	}

	fs := storage.NewFileStorage(storage.WithBaseDir(baseDir))
	if err := fs.Init(); err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}

	if err := ensureRuntimeGitignore(baseDir); err != nil {
		return err
	}

	printInitSummary(baseDir)
	return nil
}

// ensureRuntimeGitignore drops a deny-all .gitignore inside the runtime
// directory so projects that happen to use git don't need to remember to
// exclude it by hand. Decree itself never shells out to git or reads any
// VCS state; this file is courtesy output, not a dependency.
func ensureRuntimeGitignore(baseDir string) error {
	path := filepath.Join(baseDir, ".gitignore")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	content := "# Runtime state: run directories, inbox, sessions. Not meant to be committed.\n*\n!.gitignore\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return nil
}

func printInitSummary(baseDir string) {
	fmt.Printf("Initialized decree in %s\n", baseDir)
	fmt.Println()
	fmt.Println("Created:")
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
		fmt.Printf("  %s/\n", dir)
	}
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  decree run -p <prompt> - Process a single message")
	fmt.Println("  decree process         - Drain the inbox once")
	fmt.Println("  decree daemon          - Run cron and inbox loop")
}
