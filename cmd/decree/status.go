package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jtmckay/decree/internal/config"
	"github.com/jtmckay/decree/internal/formatter"
	"github.com/jtmckay/decree/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show decree status",
	Long: `Display the current state of the decree runtime directory.

Shows:
  - Whether .decree has been initialized
  - Inbox/done/dead message counts
  - Recorded run directories
  - Storage location

Examples:
  decree status
  decree status -o json`,
	RunE: runStatus,
}

func init() {
	statusCmd.GroupID = "core"
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	Initialized bool     `json:"initialized"`
	BaseDir     string   `json:"base_dir"`
	InboxCount  int      `json:"inbox_count"`
	DoneCount   int      `json:"done_count"`
	DeadCount   int      `json:"dead_count"`
	RunCount    int      `json:"run_count"`
	RecentRuns  []string `json:"recent_runs,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	baseDir := config.RuntimeDir(cwd)
	status := &statusOutput{BaseDir: baseDir}

	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		status.Initialized = false
		return outputStatus(status)
	}
	status.Initialized = true

	status.InboxCount = countEntries(filepath.Join(baseDir, storage.InboxDir))
	status.DoneCount = countEntries(filepath.Join(baseDir, storage.InboxDoneDir))
	status.DeadCount = countEntries(filepath.Join(baseDir, storage.InboxDeadDir))

	fs := storage.NewFileStorage(storage.WithBaseDir(baseDir))
	if ids, err := fs.ListRunIDs(); err == nil {
		status.RunCount = len(ids)
		sort.Strings(ids)
		limit := 5
		if len(ids) < limit {
			limit = len(ids)
		}
		status.RecentRuns = ids[len(ids)-limit:]
	}

	return outputStatus(status)
}

// countEntries returns the number of non-directory entries directly under
// dir, or 0 if dir does not exist or is unreadable.
func countEntries(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}

func outputStatus(status *statusOutput) error {
	switch GetOutput() {
	case "json":
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal status: %w", err)
		}
		fmt.Println(string(data))
		return nil
	case "yaml":
		data, err := yaml.Marshal(status)
		if err != nil {
			return fmt.Errorf("marshal status: %w", err)
		}
		fmt.Print(string(data))
		return nil
	}

	fmt.Println("Decree Status")
	fmt.Println("=============")
	fmt.Println()

	if !status.Initialized {
		fmt.Println("Status: Not initialized")
		fmt.Println()
		fmt.Println("Run 'decree init' to initialize decree in this directory.")
		return nil
	}

	fmt.Println("Status: Initialized")
	fmt.Printf("Runtime directory: %s\n", status.BaseDir)
	fmt.Println()

	fmt.Printf("Inbox: %d pending, %d done, %d dead\n", status.InboxCount, status.DoneCount, status.DeadCount)
	fmt.Printf("Runs:  %d recorded\n", status.RunCount)

	if len(status.RecentRuns) > 0 {
		fmt.Println("\nMost recent runs:")
		table := formatter.NewTable(os.Stdout, "RUN ID")
		for _, id := range status.RecentRuns {
			table.AddRow(id)
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("render recent runs table: %w", err)
		}
	}

	fmt.Println("\nCommands:")
	fmt.Println("  decree run -p <prompt> - Process a single message")
	fmt.Println("  decree process         - Drain the inbox once")
	fmt.Println("  decree daemon          - Run cron and inbox loop")
	fmt.Println("  decree log <id>        - Show a message's routine log")

	return nil
}
