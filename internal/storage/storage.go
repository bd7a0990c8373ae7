// Package storage provides interfaces and implementations for persisting
// decree's per-project runtime state: run directories, the inbox/done/dead
// message lifecycle, and the processed-spec tracker.
package storage

import "io"

// Storage is the interface for persisting decree's runtime filesystem
// layout (spec.md section 6). A run directory holds one message's copy,
// checkpoint manifest, diff, and execution artifacts; it is created once
// and never mutated after disposition except by appends to its logs.
type Storage interface {
	// Init creates the runtime directory skeleton (routines/, plans/,
	// cron/, inbox/{done,dead}, runs/, sessions/) if not already present.
	Init() error

	// RunDir returns the absolute path of the run directory for id,
	// creating it (and any missing parents) if necessary.
	RunDir(id string) (string, error)

	// WriteRunFile atomically writes name within the run directory for id.
	// Returns the full path written.
	WriteRunFile(id, name string, data []byte) (string, error)

	// ReadRunFile reads name from the run directory for id.
	ReadRunFile(id, name string) ([]byte, error)

	// AppendRunLog appends data to name within the run directory for id,
	// creating it if absent. Used for routine.log/runner.log streaming.
	AppendRunLog(id, name string, data []byte) error

	// ListRunIDs returns every run id with a run directory, unsorted.
	ListRunIDs() ([]string, error)

	// AppendProcessedSpec records specPath as processed in the tracker,
	// deduplicating repeated calls for the same path.
	AppendProcessedSpec(specPath string) error

	// IsSpecProcessed reports whether specPath is already in the tracker.
	IsSpecProcessed(specPath string) (bool, error)

	// Close releases any resources held by the storage implementation.
	Close() error
}

// LogWriter adapts AppendRunLog to io.Writer for streaming subprocess
// output directly into a run directory log file.
type LogWriter struct {
	Storage Storage
	RunID   string
	Name    string
}

func (w *LogWriter) Write(p []byte) (int, error) {
	if err := w.Storage.AppendRunLog(w.RunID, w.Name, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

var _ io.Writer = (*LogWriter)(nil)
