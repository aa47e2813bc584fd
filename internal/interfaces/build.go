package interfaces

import (
	"context"

	"github.com/crab-bench/crab-server/internal/models"
)

// BuildResolver extracts an archived repository snapshot and selects the
// build handler matching its build system.
type BuildResolver interface {
	Resolve(root, archiveName string) (BuildHandler, error)
}

// BuildHandler drives one extracted repository snapshot through its build
// system inside a sandboxed container. Callers bound each container command
// with a context deadline.
type BuildHandler interface {
	// Root returns the extracted repository directory.
	Root() string

	// InjectChanges writes user-supplied files into the repository,
	// rejecting any path that resolves outside it.
	InjectChanges(changes map[string]string) error

	// Start launches the build container with the repository mounted at
	// /repo.
	Start(ctx context.Context) error

	// Stop kills and removes the container and deletes the extracted
	// directory. Safe to call when Start failed or never ran.
	Stop()

	// CompileRepo compiles the project inside the container.
	CompileRepo(ctx context.Context) error

	// TestRepo runs the test suite and records test counts, retrievable
	// via Stats.
	TestRepo(ctx context.Context) error

	// CleanRepo removes build artifacts. The command's exit status is
	// ignored.
	CleanRepo(ctx context.Context) error

	// GenerateCoverageReport produces coverage reports, injecting the
	// coverage plugin into the build file on first failure and retrying
	// once.
	GenerateCoverageReport(ctx context.Context) error

	// CheckCoverage looks up line coverage for one source file across all
	// coverage reports in the repository.
	CheckCoverage(filename string) ([]models.CoverageHit, error)

	// Stats returns the test counts captured by the last TestRepo run.
	Stats() models.TestStats
}
