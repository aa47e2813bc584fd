package api

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crab-bench/crab-server/tests/common"
)

// TestCompletedJobSurvivesRestart verifies finished evaluations are
// still queryable after the server restarts.
//
// Scenario:
//  1. A first server instance accepts a comment submission and runs it
//     to completion, persisting the results file.
//  2. The instance shuts down.
//  3. A second instance starts over the same results directory.
//  4. Polling the original id on the new instance returns the completed
//     job with its results intact.
func TestCompletedJobSurvivesRestart(t *testing.T) {
	resultsDir := filepath.Join(t.TempDir(), "results")

	env := common.NewEnvWithOptions(t, common.EnvOptions{ResultsDir: resultsDir})

	id := env.Submit("comment", `{"ref-1": "fix typo in log"}`)
	env.WaitForJob(id, "complete", 5*time.Second)

	// The status flips before the results file lands on disk. Wait for
	// the write, or the next instance treats the empty file as an
	// interrupted reservation and discards it.
	resultFile := filepath.Join(resultsDir, id)
	deadline := time.Now().Add(5 * time.Second)
	for {
		info, err := os.Stat(resultFile)
		if err == nil && info.Size() > 0 {
			break
		}
		require.True(t, time.Now().Before(deadline), "results file never written: %v", err)
		time.Sleep(20 * time.Millisecond)
	}

	env.Cleanup()

	restarted := common.NewEnvWithOptions(t, common.EnvOptions{ResultsDir: resultsDir})
	defer restarted.Cleanup()

	code, body, err := restarted.JobStatus(id)
	require.NoError(t, err)
	require.Equal(t, 200, code)

	assert.Equal(t, "complete", body["status"])
	assert.Equal(t, "comment", body["type"])

	results, ok := body["results"].(map[string]any)
	require.True(t, ok, "results missing from %v", body)
	entry, ok := results["ref-1"].(map[string]any)
	require.True(t, ok, "no result for ref-1 in %v", results)
	assert.Equal(t, 100.0, entry["max_bleu_score"])
}

// TestInterruptedJobDiscardedOnRestart verifies a reservation that never
// completed is dropped by the next instance instead of resurfacing as a
// phantom job.
func TestInterruptedJobDiscardedOnRestart(t *testing.T) {
	resultsDir := filepath.Join(t.TempDir(), "results")
	require.NoError(t, os.MkdirAll(resultsDir, 0755))

	// An empty file is exactly what a crash between acceptance and
	// completion leaves behind.
	orphan := "crab_comment_deadbeef"
	require.NoError(t, os.WriteFile(filepath.Join(resultsDir, orphan), nil, 0644))

	env := common.NewEnvWithOptions(t, common.EnvOptions{ResultsDir: resultsDir})
	defer env.Cleanup()

	code, body, err := env.JobStatus(orphan)
	require.NoError(t, err)
	assert.Equal(t, 404, code)
	assert.Equal(t, "No submission with the given id", body["error"])

	_, err = os.Stat(filepath.Join(resultsDir, orphan))
	assert.True(t, os.IsNotExist(err), "interrupted reservation should be deleted")
}
