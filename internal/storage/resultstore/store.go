// Package resultstore persists job results as one file per job.
//
// Files are named crab_<type>_<nonce>. A zero-size file marks a reserved
// job whose results were never written; anything else holds the final
// results JSON. Files are removed one week after they were written.
package resultstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/crab-bench/crab-server/internal/common"
	"github.com/crab-bench/crab-server/internal/interfaces"
	"github.com/crab-bench/crab-server/internal/models"
)

const (
	filePrefix = "crab"
	resultTTL  = 7 * 24 * time.Hour
)

// Store is a file-backed result store with per-file expiry timers.
type Store struct {
	dir    string
	logger *common.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

var _ interfaces.ResultStore = (*Store)(nil)

// NewStore opens the results directory, creating it if needed.
func NewStore(logger *common.Logger, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results dir %s: %w", dir, err)
	}

	logger.Info().Str("path", dir).Msg("Result store opened")
	return &Store{
		dir:    dir,
		logger: logger,
		timers: make(map[string]*time.Timer),
	}, nil
}

// Reserve creates an empty crab_<type>_<nonce> file and returns its name
// as the job id. The empty file claims the id until results are written.
func (s *Store) Reserve(jobType string) (string, string, error) {
	if !models.ValidJobType(jobType) {
		return "", "", fmt.Errorf("invalid job type %q", jobType)
	}

	f, err := os.CreateTemp(s.dir, filePrefix+"_"+jobType+"_*")
	if err != nil {
		return "", "", fmt.Errorf("failed to reserve result file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", "", fmt.Errorf("failed to close reserved file: %w", err)
	}

	id := filepath.Base(path)
	s.logger.Debug().Str("id", id).Msg("Result file reserved")
	return id, path, nil
}

// Finalize writes the results JSON over the reservation for id and
// schedules its removal one week out.
func (s *Store) Finalize(id string, results []byte) error {
	path, err := s.resolve(id)
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(results); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	s.scheduleRemoval(id, resultTTL)
	s.logger.Debug().Str("id", id).Int("bytes", len(results)).Msg("Results persisted")
	return nil
}

// Recover scans the results directory after a restart. Zero-size files
// are leftover reservations and are deleted. Files older than the TTL
// are deleted. Files whose names don't parse as crab_<type>_<nonce> are
// skipped with a warning. Everything else is returned as a completed
// job and rescheduled for expiry.
func (s *Store) Recover() ([]interfaces.RecoveredResult, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results dir %s: %w", s.dir, err)
	}

	var recovered []interfaces.RecoveredResult
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		path := filepath.Join(s.dir, name)

		if strings.HasPrefix(name, ".tmp-") {
			os.Remove(path)
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() == 0 {
			os.Remove(path)
			s.logger.Debug().Str("file", name).Msg("Removed interrupted reservation")
			continue
		}

		parts := strings.SplitN(name, "_", 3)
		if len(parts) != 3 || parts[0] != filePrefix || !models.ValidJobType(parts[1]) || parts[2] == "" {
			s.logger.Warn().Str("file", name).Msg("Skipping unrecognized file in results dir")
			continue
		}

		expiry := info.ModTime().Add(resultTTL)
		if !expiry.After(time.Now()) {
			os.Remove(path)
			s.logger.Debug().Str("file", name).Msg("Removed expired results")
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("Failed to read results file")
			continue
		}
		if !json.Valid(data) {
			s.logger.Warn().Str("file", name).Msg("Removing corrupt results file")
			os.Remove(path)
			continue
		}

		recovered = append(recovered, interfaces.RecoveredResult{
			ID:      name,
			Type:    parts[1],
			Results: data,
		})
		s.scheduleRemoval(name, time.Until(expiry))
	}

	s.logger.Info().Int("recovered", len(recovered)).Msg("Result store recovery finished")
	return recovered, nil
}

// Remove deletes the result file for id, if any, and cancels its expiry
// timer. Removing an absent file is not an error.
func (s *Store) Remove(id string) error {
	path, err := s.resolve(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove results for %s: %w", id, err)
	}
	return nil
}

// Close stops all expiry timers. Files on disk are left for the next
// startup's Recover pass.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// --- helpers ---

// resolve maps an id to its path, rejecting anything that could escape
// the results directory.
func (s *Store) resolve(id string) (string, error) {
	if id == "" || id == "." || id == ".." || id != filepath.Base(id) {
		return "", fmt.Errorf("invalid result id %q", id)
	}
	return filepath.Join(s.dir, id), nil
}

func (s *Store) scheduleRemoval(id string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if old, ok := s.timers[id]; ok {
		old.Stop()
	}
	s.timers[id] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		os.Remove(filepath.Join(s.dir, id))
		s.logger.Debug().Str("id", id).Msg("Expired results removed")
	})
}
