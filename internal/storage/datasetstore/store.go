// Package datasetstore loads the reference PR dataset used for grading.
package datasetstore

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/crab-bench/crab-server/internal/common"
	"github.com/crab-bench/crab-server/internal/interfaces"
	"github.com/crab-bench/crab-server/internal/models"
)

// Store holds the reference dataset indexed by entry id. Entries are
// immutable after load.
type Store struct {
	path    string
	entries map[string]*models.DatasetEntry
	logger  *common.Logger
}

var _ interfaces.ReferenceStore = (*Store)(nil)

// NewStore loads the dataset file at path and indexes its entries by id.
// Rows whose extraction never finished are dropped unless keepInProgress
// is set. Entries without an id get a generated one.
func NewStore(logger *common.Logger, path string, keepInProgress bool) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}

	var dataset models.Dataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}

	entries := make(map[string]*models.DatasetEntry, len(dataset.Entries))
	dropped := 0
	for i := range dataset.Entries {
		entry := &dataset.Entries[i]
		if !keepInProgress && entry.Metadata.ReasonForFailure == models.ReasonStillProcessing {
			dropped++
			continue
		}
		if entry.Metadata.ID == "" {
			entry.Metadata.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		entries[entry.Metadata.ID] = entry
	}

	logger.Info().
		Str("path", path).
		Int("entries", len(entries)).
		Int("dropped", dropped).
		Msg("Dataset loaded")

	return &Store{
		path:    path,
		entries: entries,
		logger:  logger,
	}, nil
}

// Lookup returns the reference entry for id.
func (s *Store) Lookup(id string) (*models.DatasetEntry, bool) {
	entry, ok := s.entries[id]
	return entry, ok
}

// Len returns the number of indexed entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// Path returns the file the dataset was loaded from.
func (s *Store) Path() string {
	return s.path
}
