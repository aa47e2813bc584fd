// Package app wires configuration, stores, and evaluation services into
// the shared core used by cmd/crab-server and the test harness.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/crab-bench/crab-server/internal/common"
	"github.com/crab-bench/crab-server/internal/interfaces"
	"github.com/crab-bench/crab-server/internal/services/buildhandler"
	"github.com/crab-bench/crab-server/internal/services/evaluator"
	"github.com/crab-bench/crab-server/internal/services/jobmanager"
	"github.com/crab-bench/crab-server/internal/storage/datasetstore"
	"github.com/crab-bench/crab-server/internal/storage/resultstore"
)

// App holds all initialized stores and services.
type App struct {
	Config         *common.Config
	Logger         *common.Logger
	Dataset        interfaces.ReferenceStore
	Results        interfaces.ResultStore
	JobManager     *jobmanager.Manager
	CommentEval    *evaluator.CommentEvaluator
	RefinementEval *evaluator.RefinementEvaluator
	StartupTime    time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp loads configuration, opens the dataset and result stores,
// recovers completed jobs from disk, and starts the worker pool.
// configPath may be empty, in which case the default resolution logic is
// used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	// Get binary directory for self-contained operation
	binDir := getBinaryDir()

	// Load configuration - check provided path, CRAB_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("CRAB_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "crab.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/crab.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	dataset, err := datasetstore.NewStore(logger, config.Storage.DatasetPath, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference dataset: %w", err)
	}

	results, err := resultstore.NewStore(logger, config.Storage.ResultsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}

	manager := jobmanager.NewManager(logger, results, config.Workers.MaxWorkers)

	recovered, err := results.Recover()
	if err != nil {
		results.Close()
		return nil, fmt.Errorf("failed to recover result store: %w", err)
	}
	for _, rec := range recovered {
		manager.RecoverJob(rec.ID, rec.Type, rec.Results)
	}
	if len(recovered) > 0 {
		logger.Info().Int("jobs", len(recovered)).Msg("Recovered completed jobs from disk")
	}

	resolver := buildhandler.NewResolver(logger, config.Evaluation.MockBuildHandler)

	a := &App{
		Config:      config,
		Logger:      logger,
		Dataset:     dataset,
		Results:     results,
		JobManager:  manager,
		CommentEval: evaluator.NewCommentEvaluator(logger, dataset),
		RefinementEval: evaluator.NewRefinementEvaluator(
			logger,
			dataset,
			resolver,
			config.Storage.ArchivesRoot,
			config.Evaluation.GetBuildTimeout(),
		),
		StartupTime: startupStart,
	}

	manager.Start()

	logger.Info().
		Int("dataset_entries", dataset.Len()).
		Int("max_workers", config.Workers.MaxWorkers).
		Bool("mock_build_handler", config.Evaluation.MockBuildHandler).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// Close releases all resources held by the App.
// Shutdown order: stop the worker pool, then cancel result expiry timers.
func (a *App) Close() {
	if a.JobManager != nil {
		a.JobManager.Stop()
	}
	if a.Results != nil {
		a.Results.Close()
		a.Results = nil
	}
}
