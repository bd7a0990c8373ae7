package storage

import "errors"

// Sentinel errors for the storage package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrRunIDRequired is returned when a run operation is attempted without an ID.
	ErrRunIDRequired = errors.New("run id is required")

	// ErrEmptyRunFile is returned when a run file has no content.
	ErrEmptyRunFile = errors.New("empty run file")
)
