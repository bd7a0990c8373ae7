// Package router invokes the external router AI collaborator: a
// command-line template configured by the user (commands.router) that
// decree fills in with a single prompt and runs to choose a routine for
// an otherwise-unrouted message.
package router

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jtmckay/decree/internal/message"
)

const promptPlaceholder = "{prompt}"

// defaultTimeout bounds how long decree waits on the router AI before
// treating it as RouterUnavailable and falling through to the configured
// default routine.
const defaultTimeout = 30 * time.Second

// Runner invokes a command-line template with a single {prompt}
// substitution site, per commands.router.
type Runner struct {
	// Template is the command line, e.g. `my-router-cli --ask "{prompt}"`.
	Template string

	// Timeout overrides defaultTimeout when non-zero.
	Timeout time.Duration
}

// New returns a Runner for template, or nil if template is blank (no
// router AI configured).
func New(template string) *Runner {
	template = strings.TrimSpace(template)
	if template == "" {
		return nil
	}
	return &Runner{Template: template}
}

// Route asks the router AI to pick a routine for body given the
// discovered routines, and returns the raw name it chose. The caller
// (message.Normalize) is responsible for recognizing, or discarding, the
// result.
func (r *Runner) Route(body string, routines []message.RoutineInfo) (string, error) {
	prompt := buildPrompt(body, routines)
	cmdLine := strings.ReplaceAll(r.Template, promptPlaceholder, shellQuote(prompt))

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", cmdLine)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("router command: %w", err)
	}

	return firstToken(stdout.String()), nil
}

func buildPrompt(body string, routines []message.RoutineInfo) string {
	var b strings.Builder
	b.WriteString("Message body:\n")
	b.WriteString(body)
	b.WriteString("\n\nAvailable routines:\n")
	for _, r := range routines {
		desc := r.Description
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Fprintf(&b, "- %s: %s\n", r.Name, desc)
	}
	b.WriteString("\nRespond with exactly one routine name and nothing else.")
	return b.String()
}

// firstToken returns the first whitespace-delimited token of the router
// command's output, which is expected to be just the chosen routine name.
func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// shellQuote wraps s in single quotes for safe interpolation into a
// bash -c command line, escaping any single quotes it contains.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
