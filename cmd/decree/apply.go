package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jtmckay/decree/internal/checkpoint"
	"github.com/jtmckay/decree/internal/resolver"
)

var (
	applyThrough string
	applySince   string
	applyAll     bool
	applyForce   bool
)

var applyCmd = &cobra.Command{
	Use:   "apply [id|chain]",
	Short: "Apply a recorded diff to the working tree",
	Long: `Re-apply the changes recorded for a message, or every message in a
chain, to the current working tree, reading the changes.jsonl sidecar
recorded alongside each message's changes.diff. Every hunk's precondition
is checked first; any conflict aborts the whole apply (never partial)
unless --force skips verification and overwrites unconditionally.

--all applies every recorded run in arrival order (chain id, then
sequence number) instead of a single
id/chain. --since and --through bound a chain to a sub-range by id.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.GroupID = "core"
	applyCmd.Flags().StringVar(&applyThrough, "through", "", "Apply a chain only up to and including this id")
	applyCmd.Flags().StringVar(&applySince, "since", "", "Apply a chain only after this id")
	applyCmd.Flags().BoolVar(&applyAll, "all", false, "Apply every recorded run")
	applyCmd.Flags().BoolVar(&applyForce, "force", false, "Skip precondition checks and overwrite unconditionally")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	c, _, err := newController()
	if err != nil {
		return err
	}
	r := resolver.New(c.Storage)

	var ids []string
	switch {
	case applyAll:
		ids, err = c.Storage.ListRunIDs()
		if err != nil {
			return err
		}
		sort.Slice(ids, func(i, j int) bool {
			ci, si, _ := resolver.SplitMessageID(ids[i])
			cj, sj, _ := resolver.SplitMessageID(ids[j])
			if ci != cj {
				return ci < cj
			}
			return si < sj
		})
	case len(args) == 1:
		ids, err = resolveOne(r, args[0])
	default:
		return fmt.Errorf("specify an id/chain or pass --all")
	}
	if err != nil {
		return err
	}

	ids = filterByRange(ids, applySince, applyThrough)

	mode := checkpoint.ModeApply
	if applyForce {
		mode = checkpoint.ModeForce
	}

	for _, id := range ids {
		data, err := c.Storage.ReadRunFile(id, "changes.jsonl")
		if err != nil {
			continue
		}
		report, err := checkpoint.Apply(string(data), c.RepoRoot, mode)
		if err != nil {
			return fmt.Errorf("apply %s: %w", id, err)
		}
		if len(report.Conflicts) > 0 {
			fmt.Fprintf(os.Stderr, "%s: %d conflict(s):\n", id, len(report.Conflicts))
			for _, conflict := range report.Conflicts {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", conflict.Path, conflict.Reason)
			}
			return fmt.Errorf("apply conflict in %s; re-run with --force to override", id)
		}
		fmt.Printf("%s: applied %d file(s)\n", id, len(report.Applied))
	}
	return nil
}

// filterByRange restricts a sequence-ordered id list to (since, through].
func filterByRange(ids []string, since, through string) []string {
	if since == "" && through == "" {
		return ids
	}

	sinceSeq, throughSeq := -1, -1
	if since != "" {
		if _, seq, ok := resolver.SplitMessageID(since); ok {
			sinceSeq = seq
		}
	}
	if through != "" {
		if _, seq, ok := resolver.SplitMessageID(through); ok {
			throughSeq = seq
		}
	}

	var out []string
	for _, id := range ids {
		_, seq, ok := resolver.SplitMessageID(id)
		if !ok {
			continue
		}
		if sinceSeq >= 0 && seq <= sinceSeq {
			continue
		}
		if throughSeq >= 0 && seq > throughSeq {
			continue
		}
		out = append(out, id)
	}
	return out
}
