package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jtmckay/decree/internal/message"
	"github.com/jtmckay/decree/internal/storage"
)

const cronDirName = "cron"

// scheduleField is the header field holding a cron entry's five-field
// scheduling expression. It is never propagated to the inbox message a
// firing cron synthesizes.
const scheduleField = "schedule"

// Shutdown tracks a cooperative graceful-shutdown request. A single
// request lets the daemon finish the message currently in flight and then
// exit without draining the rest of the inbox; nothing kills the in-flight
// child process.
type Shutdown struct {
	requested atomic.Bool
}

// Request marks the shutdown flag. Safe to call more than once.
func (s *Shutdown) Request() {
	s.requested.Store(true)
}

// Requested reports whether a shutdown has been requested.
func (s *Shutdown) Requested() bool {
	return s.requested.Load()
}

// RunDaemon runs the cooperative poll loop: a cron phase followed by an
// inbox-drain phase each tick, sleeping the configured interval between
// ticks. It returns when ctx is canceled (a second, forceful signal) or
// when shutdown is requested and the current cooperative checkpoint is
// reached.
func (c *Controller) RunDaemon(ctx context.Context, shutdown *Shutdown) error {
	fired := make(map[string]int64)
	interval := time.Duration(c.Config.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}

	for {
		if shutdown.Requested() || ctx.Err() != nil {
			return nil
		}

		if err := c.cronTick(time.Now(), fired); err != nil {
			return fmt.Errorf("cron phase: %w", err)
		}

		if shutdown.Requested() || ctx.Err() != nil {
			return nil
		}

		if _, err := c.drainInbox(ctx, shutdown); err != nil {
			return fmt.Errorf("inbox phase: %w", err)
		}

		sleepInterval(ctx, shutdown, interval)
	}
}

// idlePollInterval bounds how long a sleeping daemon can take to notice a
// shutdown request: the wait between ticks is checked in increments of this
// size rather than as one long sleep, so a signal arriving while idle exits
// promptly instead of waiting out the rest of the poll interval.
const idlePollInterval = 250 * time.Millisecond

// sleepInterval waits for interval to elapse, returning early the moment
// ctx is canceled or shutdown is requested.
func sleepInterval(ctx context.Context, shutdown *Shutdown, interval time.Duration) {
	tick := idlePollInterval
	if tick > interval {
		tick = interval
	}
	if tick <= 0 {
		return
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	deadline := time.Now().Add(interval)
	for time.Now().Before(deadline) {
		if shutdown.Requested() || ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DrainInboxOnce runs a single, non-daemon inbox phase: depth-first
// draining of every message currently queued, with no cron phase and no
// polling sleep. Used by the process command.
func (c *Controller) DrainInboxOnce(ctx context.Context) ([]*Outcome, error) {
	return c.drainInbox(ctx, &Shutdown{})
}

// cronTick enumerates cron files and synthesizes an inbox message for each
// one newly firing in the current wall-clock minute, per fired's
// (cron_path, fire_minute) dedup table.
func (c *Controller) cronTick(now time.Time, fired map[string]int64) error {
	dir := filepath.Join(c.BaseDir, cronDirName)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	minute := now.Truncate(time.Minute)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		fires, parsed, err := c.cronFires(path, minute)
		if err != nil || !fires {
			continue
		}
		if fired[path] == minute.Unix() {
			continue
		}

		if err := c.spawnCronMessage(path, parsed); err != nil {
			return fmt.Errorf("spawn cron message for %s: %w", path, err)
		}
		fired[path] = minute.Unix()
	}
	return nil
}

// cronFires reports whether the cron file at path is scheduled to fire at
// minute, per its five-field scheduling expression.
func (c *Controller) cronFires(path string, minute time.Time) (bool, *message.ParsedFile, error) {
	parsed, err := message.ParseFile(path)
	if err != nil {
		return false, nil, err
	}
	expr := strings.TrimSpace(parsed.Header.Extra[scheduleField])
	if expr == "" {
		return false, parsed, nil
	}

	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return false, parsed, nil
	}

	// Schedule.Next reports the first fire time strictly after the given
	// instant; minute matches iff the schedule's next fire after the
	// preceding minute lands exactly on minute.
	return sched.Next(minute.Add(-time.Minute)).Equal(minute), parsed, nil
}

// spawnCronMessage writes a new inbox message for a firing cron entry:
// new chain id, seq 0, type task, the cron file's own body, and every
// header field except the scheduling expression.
func (c *Controller) spawnCronMessage(path string, parsed *message.ParsedFile) error {
	chain := message.NewChainID()
	id := fmt.Sprintf("%s-0", chain)

	extra := make(map[string]string, len(parsed.Header.Extra))
	for k, v := range parsed.Header.Extra {
		if k == scheduleField {
			continue
		}
		extra[k] = v
	}

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "id: %s\n", id)
	fmt.Fprintf(&b, "chain: %s\n", chain)
	b.WriteString("seq: 0\n")
	b.WriteString("type: task\n")
	if parsed.Header.Routine != "" {
		fmt.Fprintf(&b, "routine: %s\n", parsed.Header.Routine)
	}
	for _, k := range sortedExtraKeys(extra) {
		fmt.Fprintf(&b, "%s: %s\n", k, extra[k])
	}
	b.WriteString("---\n")
	b.WriteString(parsed.Body)

	if err := os.MkdirAll(c.inboxDir(), 0700); err != nil {
		return err
	}
	dest := filepath.Join(c.inboxDir(), id+".task")
	return storage.AtomicWriteFile(dest, []byte(b.String()))
}

func sortedExtraKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// drainInbox processes queued top-level inbox messages in arrival
// (filename) order, each with depth-first chain continuation, honoring
// shutdown between messages: the message currently in flight always
// finishes disposition, but a requested shutdown stops both further chain
// continuation and further top-level messages.
func (c *Controller) drainInbox(ctx context.Context, shutdown *Shutdown) ([]*Outcome, error) {
	entries, err := os.ReadDir(c.inboxDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var outcomes []*Outcome
	for _, name := range names {
		if shutdown.Requested() {
			return outcomes, nil
		}

		path := filepath.Join(c.inboxDir(), name)
		if _, err := os.Stat(path); err != nil {
			// Already consumed as a chain continuation earlier this pass.
			continue
		}

		chainOutcomes, err := c.processChain(ctx, path, shutdown.Requested)
		outcomes = append(outcomes, chainOutcomes...)
		if err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}
