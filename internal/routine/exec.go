package routine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/jtmckay/decree/internal/message"
	"github.com/jtmckay/decree/internal/storage"
)

// notebookRunnerCmd is the external notebook execution tool invoked for
// notebook-format routines.
const notebookRunnerCmd = "papermill"

// Options configures a single routine invocation.
type Options struct {
	// RepoRoot is the working directory the routine runs in.
	RepoRoot string

	// Storage owns the run directory logs are written into.
	Storage storage.Storage

	// RunID identifies the run directory to write logs and artifacts to.
	RunID string
}

// Result is the outcome of one routine invocation.
type Result struct {
	ExitCode int
	TimedOut bool

	// OutputDoc is the path to the executed notebook's output document,
	// set only for notebook routines.
	OutputDoc string
}

// Run invokes r with the given environment bindings and waits for it to
// exit, returning its exit status. ctx cancellation sends the child a
// single termination signal; Run still waits for it to exit and returns
// whatever result is available.
func Run(ctx context.Context, r message.RoutineInfo, bindings map[string]string, opts Options) (*Result, error) {
	switch r.Ext {
	case ".sh", "":
		return runShell(ctx, r, bindings, opts)
	case ".ipynb":
		return runNotebook(ctx, r, bindings, opts)
	default:
		return nil, fmt.Errorf("unsupported routine format %q", r.Ext)
	}
}

func runShell(ctx context.Context, r message.RoutineInfo, bindings map[string]string, opts Options) (*Result, error) {
	cmd := exec.CommandContext(ctx, "bash", r.Path)
	cmd.Dir = opts.RepoRoot
	cmd.Env = append(os.Environ(), envPairs(bindings)...)

	logWriter := &storage.LogWriter{Storage: opts.Storage, RunID: opts.RunID, Name: "routine.log"}
	cmd.Stdout = logWriter
	cmd.Stderr = logWriter

	return runAndWait(ctx, cmd)
}

func runNotebook(ctx context.Context, r message.RoutineInfo, bindings map[string]string, opts Options) (*Result, error) {
	runDir, err := opts.Storage.RunDir(opts.RunID)
	if err != nil {
		return nil, fmt.Errorf("resolve run directory: %w", err)
	}
	outputDoc := filepath.Join(runDir, r.Name+".out.ipynb")

	args := []string{r.Path, outputDoc}
	for _, name := range sortedKeys(bindings) {
		args = append(args, "-p", name, bindings[name])
	}

	cmd := exec.CommandContext(ctx, notebookRunnerCmd, args...)
	cmd.Dir = opts.RepoRoot
	cmd.Env = os.Environ()

	logWriter := &storage.LogWriter{Storage: opts.Storage, RunID: opts.RunID, Name: "runner.log"}
	cmd.Stderr = logWriter

	res, err := runAndWait(ctx, cmd)
	if res != nil {
		res.OutputDoc = outputDoc
	}
	return res, err
}

// runAndWait starts cmd and waits for it to exit, forwarding ctx
// cancellation to the child as a single SIGTERM rather than killing it
// outright, so the executor can still collect its artifacts. cmd.Cancel is
// disabled so an already-canceled ctx still fails cmd.Start() outright
// (exec.CommandContext's own guard) without exec's default kill-on-cancel
// behavior racing the SIGTERM this function sends itself.
func runAndWait(ctx context.Context, cmd *exec.Cmd) (*Result, error) {
	cmd.Cancel = func() error { return nil }

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", filepath.Base(cmd.Path), err)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Signal(syscall.SIGTERM)
		err := <-waitErr
		return &Result{ExitCode: exitCode(err), TimedOut: true}, nil
	case err := <-waitErr:
		return &Result{ExitCode: exitCode(err)}, nil
	}
}

// exitCode extracts a process exit code from the error exec.Cmd.Wait
// returns, treating a nil error (clean exit) as 0.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
