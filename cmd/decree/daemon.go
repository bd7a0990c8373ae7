package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jtmckay/decree/internal/pipeline"
)

var daemonInterval int

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the cron and inbox loop until signaled to stop",
	Long: `Run decree's cooperative poll loop: each tick evaluates cron
entries (synthesizing inbox messages for newly-firing schedules) and then
drains the inbox depth-first, sleeping the configured interval between
ticks.

A single interrupt or terminate signal requests a graceful shutdown: the
message currently in flight finishes disposition, but its chain is not
continued and the rest of the inbox is left for next start. A second
signal terminates the in-flight routine and exits immediately.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.GroupID = "core"
	daemonCmd.Flags().IntVar(&daemonInterval, "interval", 0, "Poll interval in seconds (default: config's poll_interval_seconds)")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	c, cfg, err := newController()
	if err != nil {
		return err
	}
	if daemonInterval > 0 {
		cfg.PollIntervalSeconds = daemonInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var shutdown pipeline.Shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if shutdown.Requested() {
				fmt.Fprintln(os.Stderr, "\nSecond signal received, terminating in-flight routine.")
				cancel()
				return
			}
			fmt.Fprintln(os.Stderr, "\nShutdown requested; finishing the current message.")
			shutdown.Request()
		}
	}()
	defer signal.Stop(sigCh)

	return c.RunDaemon(ctx, &shutdown)
}
