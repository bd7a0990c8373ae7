package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Batch process every unprocessed spec, then drain the inbox",
	Long: `Enqueue and run every unprocessed specs/*.spec.md file in
lexicographic filename order, depth-first within each chain, then drain
whatever else is left queued in the inbox (ad-hoc messages, prior cron
fires). A dead-lettered spec does not halt the batch; an integrity
violation does. Use 'daemon' for a long-running loop that also evaluates
cron entries.`,
	RunE: runProcess,
}

func init() {
	processCmd.GroupID = "core"
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	c, _, err := newController()
	if err != nil {
		return err
	}

	ctx := context.Background()

	batchResult, err := c.RunBatch(ctx)
	if err != nil {
		return err
	}
	if batchResult.NoSpecs {
		fmt.Println("No unprocessed specs.")
	}
	for _, o := range batchResult.Outcomes {
		fmt.Printf("%s-%d: %s\n", o.Chain, o.Seq, o.Final)
	}

	inboxOutcomes, err := c.DrainInboxOnce(ctx)
	if err != nil {
		return err
	}
	for _, o := range inboxOutcomes {
		fmt.Printf("%s-%d: %s\n", o.Chain, o.Seq, o.Final)
	}

	if batchResult.NoSpecs && len(inboxOutcomes) == 0 {
		fmt.Println("Inbox empty; nothing else to do.")
	}
	return nil
}
