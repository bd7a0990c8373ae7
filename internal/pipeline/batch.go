package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jtmckay/decree/internal/storage"
)

const specsDirName = "specs"

// BatchResult summarizes one batch process invocation.
type BatchResult struct {
	Outcomes []*Outcome
	NoSpecs  bool
}

// RunBatch processes every unprocessed spec under <RepoRoot>/specs in
// lexicographic filename order. A dead-lettered spec does not halt the
// batch; an integrity violation surfaced by the checkpoint engine's revert
// does.
func (c *Controller) RunBatch(ctx context.Context) (*BatchResult, error) {
	specs, err := c.unprocessedSpecs()
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return &BatchResult{NoSpecs: true}, nil
	}

	result := &BatchResult{}
	for _, relPath := range specs {
		msgPath, err := c.enqueueSpec(relPath)
		if err != nil {
			return result, fmt.Errorf("enqueue spec %s: %w", relPath, err)
		}

		// ProcessOne only ever returns an error for infrastructure failures
		// (checkpoint I/O, integrity violations); per-message evaluation
		// failures are contained as a Dead disposition, not an error. Any
		// error here is cross-cutting and halts the batch, per spec.
		outcomes, err := c.ProcessChain(ctx, msgPath)
		result.Outcomes = append(result.Outcomes, outcomes...)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// unprocessedSpecs lists *.spec.md files under <RepoRoot>/specs not yet
// recorded in the processed-spec tracker, sorted lexicographically by
// filename.
func (c *Controller) unprocessedSpecs() ([]string, error) {
	dir := filepath.Join(c.RepoRoot, specsDirName)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".spec.md") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var rel []string
	for _, name := range names {
		relPath := filepath.Join(specsDirName, name)
		processed, err := c.Storage.IsSpecProcessed(relPath)
		if err != nil {
			return nil, err
		}
		if !processed {
			rel = append(rel, relPath)
		}
	}
	return rel, nil
}

// enqueueSpec synthesizes an inbox message pointing at a spec file so it
// can flow through the same normalizer and state machine as any other
// message; the normalizer mints the chain id, seq, and type from
// input_file, exactly as it would for a hand-authored message.
func (c *Controller) enqueueSpec(relPath string) (string, error) {
	header := fmt.Sprintf("---\ninput_file: %s\n---\n", relPath)
	name := strings.TrimSuffix(filepath.Base(relPath), ".spec.md") + ".msg"
	dest := filepath.Join(c.inboxDir(), name)

	if err := os.MkdirAll(c.inboxDir(), 0700); err != nil {
		return "", err
	}
	if err := storage.AtomicWriteFile(dest, []byte(header)); err != nil {
		return "", err
	}
	return dest, nil
}
