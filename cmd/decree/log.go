package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jtmckay/decree/internal/resolver"
)

var logCmd = &cobra.Command{
	Use:   "log [id]",
	Short: "Show the routine/runner log for a message",
	Long: `Print the log captured for a message's run: routine.log for a
shell routine, or runner.log alongside the output notebook for a notebook
routine. Accepts a unique id prefix.`,
	Args: cobra.ExactArgs(1),
	RunE: runLog,
}

func init() {
	logCmd.GroupID = "core"
	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	c, _, err := newController()
	if err != nil {
		return err
	}
	r := resolver.New(c.Storage)

	id, err := r.Resolve(args[0])
	if err != nil {
		return err
	}

	for _, name := range []string{"routine.log", "runner.log"} {
		data, err := c.Storage.ReadRunFile(id, name)
		if err != nil {
			continue
		}
		fmt.Print(string(data))
		return nil
	}
	return fmt.Errorf("no log recorded for %s", id)
}
