package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jtmckay/decree/internal/checkpoint"
	"github.com/jtmckay/decree/internal/config"
	rcontext "github.com/jtmckay/decree/internal/context"
	"github.com/jtmckay/decree/internal/message"
	"github.com/jtmckay/decree/internal/routine"
	"github.com/jtmckay/decree/internal/storage"
)

// Controller orchestrates the normalizer, checkpoint engine, and routine
// executor for one-shot, batch, and daemon entry modes.
type Controller struct {
	// Storage owns run directories and the inbox lifecycle tracker.
	Storage storage.Storage

	// Config holds max_retries, max_depth, default_routine, and
	// notebook_support.
	Config *config.Config

	// RepoRoot is the project root the checkpoint engine snapshots and the
	// routine executor runs in.
	RepoRoot string

	// BaseDir is the runtime directory (".decree"), used to locate the
	// routines directory and inbox.
	BaseDir string

	// Router invokes the external router AI collaborator. May be nil, in
	// which case normalization falls straight through to the configured
	// default routine.
	Router message.RouterFunc
}

// Outcome reports how a single message was finally dispositioned.
type Outcome struct {
	MessageID string
	Chain     string
	Seq       int
	Final     State
	Warnings  []message.Warning
}

func (c *Controller) routinesDir() string {
	return filepath.Join(c.BaseDir, storage.RoutinesDir)
}

func (c *Controller) inboxDir() string {
	return filepath.Join(c.BaseDir, storage.InboxDir)
}

// ProcessOne runs the full per-message state machine (spec section 4.E,
// steps 1-7) for the message file at msgPath, returning its final
// disposition. It does not continue the message's chain; callers wanting
// depth-first chain continuation should use ProcessChain.
func (c *Controller) ProcessOne(ctx context.Context, msgPath string) (*Outcome, error) {
	routines, err := message.DiscoverRoutines(c.routinesDir(), c.Config.NotebookSupport)
	if err != nil {
		return nil, fmt.Errorf("discover routines: %w", err)
	}

	// Step 1: Pending -> Normalized.
	normResult, err := message.Normalize(msgPath, message.Options{
		Root:           c.RepoRoot,
		DefaultRoutine: c.Config.DefaultRoutine,
		Routines:       routines,
		Router:         c.Router,
	})
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", msgPath, err)
	}
	msg := normResult.Message

	if c.Config.MaxDepth > 0 && msg.Seq >= c.Config.MaxDepth {
		if err := c.deadLetter(msgPath); err != nil {
			return nil, err
		}
		return &Outcome{MessageID: msg.ID, Chain: msg.Chain, Seq: msg.Seq, Final: StateDead, Warnings: normResult.Warnings}, nil
	}

	routineInfo, ok := message.LookupRoutine(routines, msg.Routine)
	if !ok {
		if err := c.deadLetter(msgPath); err != nil {
			return nil, err
		}
		return &Outcome{MessageID: msg.ID, Chain: msg.Chain, Seq: msg.Seq, Final: StateDead, Warnings: normResult.Warnings}, nil
	}

	// Step 2: Normalized -> Checkpointed.
	runID := msg.ID
	runDir, err := c.Storage.RunDir(runID)
	if err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	msgCopyPath := filepath.Join(runDir, "message"+msg.Ext)
	msgBytes, err := os.ReadFile(msgPath)
	if err != nil {
		return nil, fmt.Errorf("read message for copy: %w", err)
	}
	if err := storage.AtomicWriteFile(msgCopyPath, msgBytes); err != nil {
		return nil, fmt.Errorf("copy message into run directory: %w", err)
	}

	ckptOpts := checkpoint.Options{RuntimeDirName: config.RuntimeDirName}
	preDir := filepath.Join(runDir, "pre")
	if err := os.MkdirAll(preDir, 0700); err != nil {
		return nil, err
	}
	originalManifest, _, err := checkpoint.Snapshot(c.RepoRoot, ckptOpts, preDir)
	if err != nil {
		return nil, fmt.Errorf("checkpoint snapshot: %w", err)
	}
	manifestData, err := originalManifest.Marshal()
	if err != nil {
		return nil, err
	}
	if _, err := c.Storage.WriteRunFile(runID, "manifest.json", manifestData); err != nil {
		return nil, err
	}

	// Steps 3-7: the attempt loop.
	final, err := c.runAttempts(ctx, runID, runDir, preDir, ckptOpts, originalManifest, msg, routineInfo)
	if err != nil {
		return nil, err
	}

	switch final {
	case StateDone:
		if err := c.disposition(msgPath, storage.InboxDoneDir); err != nil {
			return nil, err
		}
		if msg.Type == "spec" && msg.InputFile != "" {
			if err := c.Storage.AppendProcessedSpec(msg.InputFile); err != nil {
				return nil, err
			}
		}
	case StateDead:
		if err := c.disposition(msgPath, storage.InboxDeadDir); err != nil {
			return nil, err
		}
	}

	return &Outcome{MessageID: msg.ID, Chain: msg.Chain, Seq: msg.Seq, Final: final, Warnings: normResult.Warnings}, nil
}

// runAttempts executes the dirty-attempts-plus-one-clean-slate-attempt
// retry loop (spec section 4.E steps 3-8; total attempts is
// Config.MaxRetries dirty attempts plus one final clean-slate attempt).
func (c *Controller) runAttempts(
	ctx context.Context,
	runID, runDir, preDir string,
	ckptOpts checkpoint.Options,
	originalManifest *checkpoint.Manifest,
	msg *message.Message,
	routineInfo message.RoutineInfo,
) (State, error) {
	totalAttempts := c.Config.MaxRetries + 1
	tracker := rcontext.NewBudgetTracker(runID)

	params, err := routine.DiscoverParams(routineInfo)
	if err != nil {
		return "", fmt.Errorf("discover routine parameters: %w", err)
	}
	runCtx := routine.RunContext{
		SpecFile:    msg.InputFile,
		MessageFile: filepath.Join(runDir, "message"+msg.Ext),
		MessageID:   msg.ID,
		MessageDir:  runDir,
		Chain:       msg.Chain,
		Seq:         msg.Seq,
	}
	bindings := routine.BuildBindings(runCtx, params, msg.Extra)

	for attempt := 1; attempt <= totalAttempts; attempt++ {
		// Cooperative checkpoint: a second, forceful signal cancels ctx.
		// Honor it here, before the next executor launch, rather than
		// starting another attempt.
		if ctx.Err() != nil {
			return c.abortRun(runID, preDir, ckptOpts, originalManifest)
		}

		cleanSlate := attempt == totalAttempts

		if cleanSlate && attempt > 1 {
			diffDoc, _, err := checkpoint.Diff(preDir, c.RepoRoot, ckptOpts)
			if err != nil {
				return "", fmt.Errorf("compute pre-final-attempt diff: %w", err)
			}
			if err := checkpoint.Revert(diffDoc, c.RepoRoot, originalManifest, ckptOpts); err != nil {
				return "", fmt.Errorf("revert before final attempt: %w", err)
			}

			renderer := rcontext.NewRenderer(tracker)
			failureDoc := renderer.Render()
			if _, err := c.Storage.WriteRunFile(runID, "failure-context.md", []byte(failureDoc)); err != nil {
				return "", err
			}
		}

		res, err := routine.Run(ctx, routineInfo, bindings, routine.Options{
			RepoRoot: c.RepoRoot,
			Storage:  c.Storage,
			RunID:    runID,
		})
		if err != nil {
			return "", fmt.Errorf("execute routine: %w", err)
		}

		output, _ := c.Storage.ReadRunFile(runID, "routine.log")
		tracker.RecordAttempt(routineInfo.Path, res.ExitCode, string(output), cleanSlate)
		_ = tracker.Save(c.BaseDir)

		if res.ExitCode == 0 {
			diffDoc, _, err := checkpoint.Diff(preDir, c.RepoRoot, ckptOpts)
			if err != nil {
				return "", fmt.Errorf("compute success diff: %w", err)
			}
			if err := c.writeChangesArtifacts(runID, diffDoc); err != nil {
				return "", err
			}
			return StateDone, nil
		}

		if !cleanSlate {
			diffDoc, _, err := checkpoint.Diff(preDir, c.RepoRoot, ckptOpts)
			if err == nil {
				if hunks, hErr := checkpoint.ParseHunks(diffDoc); hErr == nil {
					rendered := checkpoint.RenderUnifiedDocument(hunks)
					_, _ = c.Storage.WriteRunFile(runID, fmt.Sprintf("attempt-%d.diff", attempt), []byte(rendered))
				}
			}
			continue
		}

		// The final clean-slate attempt also failed: revert once more and
		// dead-letter the message.
		diffDoc, _, err := checkpoint.Diff(preDir, c.RepoRoot, ckptOpts)
		if err != nil {
			return "", fmt.Errorf("compute final failure diff: %w", err)
		}
		if err := c.writeChangesArtifacts(runID, diffDoc); err != nil {
			return "", err
		}
		if err := checkpoint.Revert(diffDoc, c.RepoRoot, originalManifest, ckptOpts); err != nil {
			return "", fmt.Errorf("revert after final failure: %w", err)
		}
		return StateDead, nil
	}

	// Unreachable: every iteration returns Done on success or, on the
	// clean-slate attempt (the last one), Dead on failure.
	return StateDead, nil
}

// writeChangesArtifacts persists the run's final diff in two forms:
// changes.jsonl, the full-content hunk form Apply and Revert consume, and
// changes.diff, the standard unified diff document spec section 6 names —
// the one a human or another diff tool reads.
func (c *Controller) writeChangesArtifacts(runID, diffDoc string) error {
	if _, err := c.Storage.WriteRunFile(runID, "changes.jsonl", []byte(diffDoc)); err != nil {
		return err
	}
	hunks, err := checkpoint.ParseHunks(diffDoc)
	if err != nil {
		return fmt.Errorf("parse hunks for rendering: %w", err)
	}
	rendered := checkpoint.RenderUnifiedDocument(hunks)
	if _, err := c.Storage.WriteRunFile(runID, "changes.diff", []byte(rendered)); err != nil {
		return err
	}
	return nil
}

// abortRun reverts the tree and dead-letters the message when shutdown
// cancellation is observed at a cooperative checkpoint instead of launching
// another attempt. The diff recorded reflects whatever the last-run
// attempt's subprocess left behind before it was terminated.
func (c *Controller) abortRun(runID, preDir string, ckptOpts checkpoint.Options, originalManifest *checkpoint.Manifest) (State, error) {
	diffDoc, _, err := checkpoint.Diff(preDir, c.RepoRoot, ckptOpts)
	if err != nil {
		return "", fmt.Errorf("compute abort diff: %w", err)
	}
	if err := c.writeChangesArtifacts(runID, diffDoc); err != nil {
		return "", err
	}
	if err := checkpoint.Revert(diffDoc, c.RepoRoot, originalManifest, ckptOpts); err != nil {
		return "", fmt.Errorf("revert after shutdown: %w", err)
	}
	return StateDead, nil
}

// deadLetter moves a message straight to inbox/dead without a run
// directory, used for RoutineNotFound where no checkpoint was ever taken.
func (c *Controller) deadLetter(msgPath string) error {
	return c.disposition(msgPath, storage.InboxDeadDir)
}

// disposition moves the message file at msgPath into destRelDir (relative
// to BaseDir), e.g. inbox/done or inbox/dead.
func (c *Controller) disposition(msgPath, destRelDir string) error {
	destDir := filepath.Join(c.BaseDir, destRelDir)
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return err
	}
	dest := filepath.Join(destDir, filepath.Base(msgPath))
	return os.Rename(msgPath, dest)
}
