package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jtmckay/decree/internal/message"
	"github.com/jtmckay/decree/internal/storage"
)

var (
	runRoutine string
	runPrompt  string
	runVars    []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a single ad-hoc message through checkpoint, routine, and evaluation",
	Long: `Synthesize a message from -p/-m/-v flags and run it through the full
state machine: normalize, checkpoint, execute, evaluate, then disposition.
If the routine's own follow-up messages queue into the same chain, run
continues depth-first into them before returning.

Examples:
  decree run -p "add a hello file"
  decree run -m develop -p "implement the login form" -v reviewer=alice`,
	RunE: runRun,
}

func init() {
	runCmd.GroupID = "core"
	runCmd.Flags().StringVarP(&runRoutine, "routine", "m", "", "Routine to execute (otherwise normalized default applies)")
	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "", "Message body")
	runCmd.Flags().StringArrayVarP(&runVars, "var", "v", nil, "Extra header field as k=v (repeatable)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(runPrompt) == "" {
		return fmt.Errorf("-p/--prompt is required")
	}

	c, _, err := newController()
	if err != nil {
		return err
	}

	extra, err := parseVars(runVars)
	if err != nil {
		return err
	}

	chain := message.NewChainID()
	id := chain + "-0"

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "id: %s\n", id)
	fmt.Fprintf(&b, "chain: %s\n", chain)
	b.WriteString("seq: 0\n")
	if runRoutine != "" {
		fmt.Fprintf(&b, "routine: %s\n", runRoutine)
	}
	for _, k := range sortedKeys(extra) {
		fmt.Fprintf(&b, "%s: %s\n", k, extra[k])
	}
	b.WriteString("---\n")
	b.WriteString(runPrompt)
	b.WriteString("\n")

	inboxDir := filepath.Join(c.BaseDir, storage.InboxDir)
	msgPath := filepath.Join(inboxDir, id+".task")
	if err := storage.AtomicWriteFile(msgPath, []byte(b.String())); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	outcomes, err := c.ProcessChain(context.Background(), msgPath)
	if err != nil {
		return err
	}

	for _, o := range outcomes {
		fmt.Printf("%s-%d: %s\n", o.Chain, o.Seq, o.Final)
		for _, w := range o.Warnings {
			fmt.Printf("  warning: %s\n", w.String())
		}
	}
	return nil
}

func parseVars(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		idx := strings.Index(pair, "=")
		if idx <= 0 {
			return nil, fmt.Errorf("invalid -v %q, want k=v", pair)
		}
		out[pair[:idx]] = pair[idx+1:]
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
