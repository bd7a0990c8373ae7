package context

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// SummaryPriority defines what to preserve when condensing attempt output.
type SummaryPriority int

const (
	PriorityCritical SummaryPriority = iota // Always preserve in full
	PriorityHigh                            // Preserve if space allows
	PriorityMedium                          // Summarize
	PriorityLow                             // Can drop
)

// SummaryConfig configures the renderer.
type SummaryConfig struct {
	// TargetUsage is the desired usage after summarization (default: 0.5).
	TargetUsage float64

	// PreserveLastAttempt always keeps the most recent attempt in full.
	PreserveLastAttempt bool

	// MaxSummaryLength caps an individual condensed attempt, in characters.
	MaxSummaryLength int
}

// DefaultSummaryConfig returns sensible defaults.
func DefaultSummaryConfig() SummaryConfig {
	return SummaryConfig{
		TargetUsage:         0.5,
		PreserveLastAttempt: true,
		MaxSummaryLength:    800,
	}
}

// Renderer builds the failure-context document handed to a routine on retry.
type Renderer struct {
	Config  SummaryConfig
	Tracker *BudgetTracker
}

// NewRenderer creates a renderer bound to tracker.
func NewRenderer(tracker *BudgetTracker) *Renderer {
	return &Renderer{
		Config:  DefaultSummaryConfig(),
		Tracker: tracker,
	}
}

// attemptPriority ranks an attempt for condensing: the latest attempt is
// critical, clean-slate attempts are high, older dirty attempts are medium.
func (r *Renderer) attemptPriority(a Attempt, isLast bool) SummaryPriority {
	if isLast && r.Config.PreserveLastAttempt {
		return PriorityCritical
	}
	if a.CleanSlate {
		return PriorityHigh
	}
	return PriorityMedium
}

// Render produces the failure-context markdown for the next attempt,
// condensing older attempts once the budget is under pressure.
func (r *Renderer) Render() string {
	targetChars := int(float64(r.Tracker.MaxChars) * r.Config.TargetUsage)

	type ranked struct {
		attempt  Attempt
		priority SummaryPriority
	}
	items := make([]ranked, len(r.Tracker.Attempts))
	for i, a := range r.Tracker.Attempts {
		items[i] = ranked{attempt: a, priority: r.attemptPriority(a, i == len(r.Tracker.Attempts)-1)}
	}

	ordered := make([]ranked, len(items))
	copy(ordered, items)
	slices.SortFunc(ordered, func(a, b ranked) int {
		return cmp.Compare(a.priority, b.priority)
	})

	rendered := make(map[int]string, len(items))
	currentChars := 0
	for _, it := range ordered {
		full := r.renderAttempt(it.attempt, it.attempt.Output)
		if it.priority == PriorityCritical || len(full) <= targetChars-currentChars {
			rendered[it.attempt.Number] = full
			currentChars += len(full)
			continue
		}
		if it.priority <= PriorityMedium {
			summary := r.condense(it.attempt.Output)
			condensed := r.renderAttempt(it.attempt, summary)
			rendered[it.attempt.Number] = condensed
			currentChars += len(condensed)
			r.Tracker.RecordSummarization(it.attempt.Number, len(it.attempt.Output), len(summary))
		}
		// Low-priority attempts that still don't fit are dropped.
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("# Failure Context: %s\n\n", r.Tracker.MessageID))
	for _, a := range r.Tracker.Attempts {
		if text, ok := rendered[a.Number]; ok {
			b.WriteString(text)
		}
	}
	return b.String()
}

// renderAttempt formats a single attempt record as a markdown section.
func (r *Renderer) renderAttempt(a Attempt, output string) string {
	var b strings.Builder
	label := fmt.Sprintf("## Attempt %d", a.Number)
	if a.CleanSlate {
		label += " (clean slate)"
	}
	b.WriteString(label + "\n\n")
	b.WriteString(fmt.Sprintf("Command: `%s`\n", a.Command))
	b.WriteString(fmt.Sprintf("Exit code: %d\n\n", a.ExitCode))
	b.WriteString("```\n")
	b.WriteString(output)
	b.WriteString("\n```\n\n")
	return b.String()
}

// condense truncates output to MaxSummaryLength, preferring to keep the
// tail, since routine failures usually surface their cause last.
func (r *Renderer) condense(output string) string {
	max := r.Config.MaxSummaryLength
	if len(output) <= max {
		return output
	}
	if max <= 3 {
		return output[len(output)-max:]
	}
	return "...(truncated)...\n" + output[len(output)-max:]
}
