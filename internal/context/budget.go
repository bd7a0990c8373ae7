// Package context tracks the failure-context budget for a message's retry
// attempts and renders the progressively-summarized failure-context document
// the controller writes to the run directory before the final clean-slate
// attempt.
package context

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Thresholds for failure-context budget management, expressed as a fraction
// of MaxChars.
const (
	// OptimalThreshold is the ideal usage (40%).
	OptimalThreshold = 0.40

	// WarningThreshold is where GetStatus reports StatusWarning (60%).
	WarningThreshold = 0.60

	// SummarizationThreshold is where GetStatus reports StatusCritical and
	// NeedsSummarization returns true (80%).
	SummarizationThreshold = 0.80

	// CriticalThreshold is 90% usage. GetStatus does not consult it, and the
	// renderer never trims the latest attempt.
	CriticalThreshold = 0.90

	// DefaultMaxChars is the assumed budget for a rendered failure-context
	// document, in characters.
	DefaultMaxChars = 16000
)

// BudgetStatus represents the current budget state.
type BudgetStatus string

const (
	StatusOptimal  BudgetStatus = "OPTIMAL"
	StatusWarning  BudgetStatus = "WARNING"
	StatusCritical BudgetStatus = "CRITICAL"
)

// BudgetTracker accumulates attempt records for a single message across its
// dirty retries and the final clean-slate attempt.
type BudgetTracker struct {
	// MessageID identifies the message these attempts belong to.
	MessageID string `json:"message_id"`

	// MaxChars is the rendered failure-context budget.
	MaxChars int `json:"max_chars"`

	// EstimatedUsage is the current character estimate across all attempts.
	EstimatedUsage int `json:"estimated_usage"`

	// Attempts recorded so far, oldest first.
	Attempts []Attempt `json:"attempts"`

	// SummarizationEvents records when an attempt was summarized to fit budget.
	SummarizationEvents []SummarizationEvent `json:"summarization_events"`

	// StartedAt is when tracking started.
	StartedAt time.Time `json:"started_at"`

	// LastUpdated is when the tracker was last updated.
	LastUpdated time.Time `json:"last_updated"`
}

// Attempt records the outcome of one execution attempt.
type Attempt struct {
	// Number is the 1-indexed attempt ordinal.
	Number int `json:"number"`

	// Timestamp of the attempt.
	Timestamp time.Time `json:"timestamp"`

	// CharUsage the rendered record for this attempt occupies.
	CharUsage int `json:"char_usage"`

	// PercentUsage of the budget at this point.
	PercentUsage float64 `json:"percent_usage"`

	// Command that was run (routine invocation or notebook cell).
	Command string `json:"command"`

	// ExitCode the routine exited with.
	ExitCode int `json:"exit_code"`

	// Output captured from stdout/stderr, possibly truncated.
	Output string `json:"output"`

	// CleanSlate is true if this attempt ran against a reverted tree.
	CleanSlate bool `json:"clean_slate"`
}

// SummarizationEvent records when an attempt's output was summarized.
type SummarizationEvent struct {
	// Timestamp of summarization.
	Timestamp time.Time `json:"timestamp"`

	// AttemptNumber that was summarized.
	AttemptNumber int `json:"attempt_number"`

	// CharsBefore usage before summarization.
	CharsBefore int `json:"chars_before"`

	// CharsAfter usage after summarization.
	CharsAfter int `json:"chars_after"`
}

// NewBudgetTracker creates a new tracker for a message's retry sequence.
func NewBudgetTracker(messageID string) *BudgetTracker {
	return &BudgetTracker{
		MessageID:   messageID,
		MaxChars:    DefaultMaxChars,
		StartedAt:   time.Now(),
		LastUpdated: time.Now(),
	}
}

// GetUsagePercent returns the current usage as a fraction of MaxChars.
func (b *BudgetTracker) GetUsagePercent() float64 {
	if b.MaxChars == 0 {
		return 0
	}
	return float64(b.EstimatedUsage) / float64(b.MaxChars)
}

// GetStatus returns the current budget status.
func (b *BudgetTracker) GetStatus() BudgetStatus {
	usage := b.GetUsagePercent()
	switch {
	case usage >= SummarizationThreshold:
		return StatusCritical
	case usage >= WarningThreshold:
		return StatusWarning
	default:
		return StatusOptimal
	}
}

// NeedsSummarization returns true if older attempts should be condensed
// before rendering the next failure-context document.
func (b *BudgetTracker) NeedsSummarization() bool {
	return b.GetUsagePercent() >= SummarizationThreshold
}

// RecordAttempt appends an attempt and updates the running estimate.
func (b *BudgetTracker) RecordAttempt(command string, exitCode int, output string, cleanSlate bool) Attempt {
	usage := EstimateChars(output)
	a := Attempt{
		Number:       len(b.Attempts) + 1,
		Timestamp:    time.Now(),
		CharUsage:    usage,
		PercentUsage: b.GetUsagePercent(),
		Command:      command,
		ExitCode:     exitCode,
		Output:       output,
		CleanSlate:   cleanSlate,
	}
	b.Attempts = append(b.Attempts, a)
	b.EstimatedUsage += usage
	b.LastUpdated = time.Now()
	return a
}

// LastAttempt returns the most recent attempt, or nil if none recorded.
func (b *BudgetTracker) LastAttempt() *Attempt {
	if len(b.Attempts) == 0 {
		return nil
	}
	return &b.Attempts[len(b.Attempts)-1]
}

// RecordSummarization records that an older attempt's output was condensed.
func (b *BudgetTracker) RecordSummarization(attemptNumber, charsBefore, charsAfter int) {
	b.SummarizationEvents = append(b.SummarizationEvents, SummarizationEvent{
		Timestamp:     time.Now(),
		AttemptNumber: attemptNumber,
		CharsBefore:   charsBefore,
		CharsAfter:    charsAfter,
	})
	b.EstimatedUsage -= charsBefore - charsAfter
	b.LastUpdated = time.Now()
}

// Save persists the tracker under the run directory for messageID.
func (b *BudgetTracker) Save(baseDir string) error {
	dir := filepath.Join(baseDir, "runs", b.MessageID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	path := filepath.Join(dir, "failure-context.json")
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Load loads a tracker previously saved under baseDir.
func Load(baseDir, messageID string) (*BudgetTracker, error) {
	path := filepath.Join(baseDir, "runs", messageID, "failure-context.json")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var b BudgetTracker
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}

	return &b, nil
}

// Report summarizes a tracker's budget status.
type Report struct {
	MessageID       string       `json:"message_id"`
	Status          BudgetStatus `json:"status"`
	UsagePercent    float64      `json:"usage_percent"`
	CharsUsed       int          `json:"chars_used"`
	CharsRemaining  int          `json:"chars_remaining"`
	AttemptCount    int          `json:"attempt_count"`
	SummarizedCount int          `json:"summarized_count"`
}

// GetReport returns a summary report.
func (b *BudgetTracker) GetReport() Report {
	return Report{
		MessageID:       b.MessageID,
		Status:          b.GetStatus(),
		UsagePercent:    b.GetUsagePercent() * 100,
		CharsUsed:       b.EstimatedUsage,
		CharsRemaining:  b.MaxChars - b.EstimatedUsage,
		AttemptCount:    len(b.Attempts),
		SummarizedCount: len(b.SummarizationEvents),
	}
}

// EstimateChars returns the char count used for budget accounting.
func EstimateChars(text string) int {
	return len(text)
}

// EstimateFileChars estimates the budget contribution of a file's contents.
func EstimateFileChars(path string) int {
	info, err := os.Stat(path)
	if err != nil {
		return 1000
	}
	return int(info.Size())
}
