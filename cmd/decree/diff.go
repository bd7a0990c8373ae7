package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jtmckay/decree/internal/resolver"
)

var diffSince string

var diffCmd = &cobra.Command{
	Use:   "diff [id|chain]",
	Short: "Show the checkpoint diff recorded for a message or chain",
	Long: `Print the standard unified diff recorded as changes.diff in a
message's run directory. Accepts a unique ID prefix (a single message) or
a chain prefix (every message in the chain, concatenated in sequence
order). --since restricts a chain to messages after the given id.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiff,
}

func init() {
	diffCmd.GroupID = "core"
	diffCmd.Flags().StringVar(&diffSince, "since", "", "Only show chain messages after this id")
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	c, _, err := newController()
	if err != nil {
		return err
	}
	r := resolver.New(c.Storage)

	ids, err := resolveOne(r, args[0])
	if err != nil {
		return err
	}

	sinceSeq := -1
	if diffSince != "" {
		if _, seq, ok := resolver.SplitMessageID(diffSince); ok {
			sinceSeq = seq
		}
	}

	for _, id := range ids {
		if sinceSeq >= 0 {
			if _, seq, ok := resolver.SplitMessageID(id); ok && seq <= sinceSeq {
				continue
			}
		}
		data, err := c.Storage.ReadRunFile(id, "changes.diff")
		if err != nil {
			continue
		}
		if len(ids) > 1 {
			fmt.Printf("=== %s ===\n", id)
		}
		fmt.Println(strings.TrimRight(string(data), "\n"))
	}
	return nil
}

// resolveOne resolves prefix to either a single message id or, when it
// names a chain, every message id in that chain in sequence order.
func resolveOne(r *resolver.Resolver, prefix string) ([]string, error) {
	if id, err := r.Resolve(prefix); err == nil {
		return []string{id}, nil
	}
	ids, err := r.ResolveChain(prefix)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", prefix, err)
	}
	return ids, nil
}
