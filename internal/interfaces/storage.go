package interfaces

import (
	"encoding/json"

	"github.com/crab-bench/crab-server/internal/models"
)

// ReferenceStore exposes the reference dataset loaded at startup.
type ReferenceStore interface {
	// Lookup returns the entry for id. Missing ids are not errors;
	// evaluators warn and skip them.
	Lookup(id string) (*models.DatasetEntry, bool)

	// Len returns the number of loaded entries.
	Len() int
}

// RecoveredResult is a completed result rehydrated from disk at startup.
type RecoveredResult struct {
	ID      string
	Type    string
	Results json.RawMessage
}

// ResultStore manages the on-disk lifecycle of evaluation results: a
// zero-size reserved file pins a job id while it runs, and the finalized
// JSON payload replaces it on completion. Files expire one week after
// completion.
type ResultStore interface {
	// Reserve atomically creates a uniquely-named empty file whose name
	// encodes jobType, and returns the name as the job id.
	Reserve(jobType string) (id string, path string, err error)

	// Finalize overwrites the reserved file with the serialized results
	// and schedules expiry one week out.
	Finalize(id string, results []byte) error

	// Recover deletes leftover zero-size files, rehydrates completed
	// results, and schedules their remaining TTL. Filenames that do not
	// parse are skipped with a warning.
	Recover() ([]RecoveredResult, error)

	// Remove deletes the file for id and cancels its expiry timer.
	// Removing an absent id is a no-op.
	Remove(id string) error

	// Close cancels all pending expiry timers.
	Close()
}
