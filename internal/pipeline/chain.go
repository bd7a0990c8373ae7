package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jtmckay/decree/internal/resolver"
)

// ProcessChain processes the message at msgPath and then, as long as each
// disposition is Done, continues depth-first into the next queued message
// of the same chain before returning to the caller's batch loop. This
// mirrors the spec's requirement that a chain be driven to completion (or
// its first non-Done outcome) before sibling chains are touched.
func (c *Controller) ProcessChain(ctx context.Context, msgPath string) ([]*Outcome, error) {
	return c.processChain(ctx, msgPath, nil)
}

// processChain is ProcessChain's implementation, with an optional stop
// predicate consulted between chain steps. The daemon's inbox phase uses
// stop to honor a graceful-shutdown request after the in-flight message
// finishes disposition, without continuing into its chain's children.
func (c *Controller) processChain(ctx context.Context, msgPath string, stop func() bool) ([]*Outcome, error) {
	var outcomes []*Outcome

	for {
		if ctx.Err() != nil {
			return outcomes, nil
		}

		outcome, err := c.ProcessOne(ctx, msgPath)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)

		if outcome.Final != StateDone {
			return outcomes, nil
		}
		if stop != nil && stop() {
			return outcomes, nil
		}

		next, ok, err := c.nextInChain(outcome.Chain, outcome.Seq)
		if err != nil {
			return outcomes, err
		}
		if !ok {
			return outcomes, nil
		}
		msgPath = next
	}
}

// nextInChain finds the lowest-numbered queued inbox message belonging to
// chain with a sequence number greater than afterSeq.
func (c *Controller) nextInChain(chain string, afterSeq int) (string, bool, error) {
	entries, err := os.ReadDir(c.inboxDir())
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}

	type candidate struct {
		path string
		seq  int
	}
	var candidates []candidate

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := inboxMessageID(entry.Name())
		if !ok {
			continue
		}
		msgChain, seq, ok := resolver.SplitMessageID(id)
		if !ok || msgChain != chain || seq <= afterSeq {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(c.inboxDir(), entry.Name()), seq: seq})
	}

	if len(candidates) == 0 {
		return "", false, nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].seq < candidates[j].seq })
	return candidates[0].path, true, nil
}

// inboxMessageID extracts the id portion (chain-seq) from an inbox
// filename, which is id followed by a single- or multi-segment extension
// (".spec.md", ".task", ...). Message IDs never contain a dot, so the
// portion before the first dot is always the id.
func inboxMessageID(name string) (string, bool) {
	idx := strings.IndexByte(name, '.')
	if idx <= 0 {
		return "", false
	}
	return name[:idx], true
}
