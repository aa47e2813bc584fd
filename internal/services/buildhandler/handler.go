// Package buildhandler compiles and tests extracted repository snapshots
// inside sandboxed build containers, and reads back test counts and
// JaCoCo line coverage.
package buildhandler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/crab-bench/crab-server/internal/common"
	"github.com/crab-bench/crab-server/internal/interfaces"
	"github.com/crab-bench/crab-server/internal/models"
)

// buildSystem supplies the per-system pieces of a build: commands, the
// container image, test-count extraction and coverage-plugin injection.
type buildSystem interface {
	Name() string
	Image() string
	BuildFile() string
	CompileCmd() []string
	TestCmd() []string
	CleanCmd() []string
	CoverageCmd() []string

	// ExtractTestStats pulls test counts out of the build output or the
	// report files the test run left behind.
	ExtractTestStats(repo, output string) (models.TestStats, error)

	// ReportPaths lists the coverage report files the system produced.
	ReportPaths(repo string) ([]string, error)

	// InjectCoveragePlugin adds the JaCoCo plugin to the build file
	// content. Returns the content unchanged when already present.
	InjectCoveragePlugin(content string) (string, error)
}

// Handler drives one extracted repository through compile, test, clean
// and coverage inside a container. It implements interfaces.BuildHandler.
type Handler struct {
	logger    *common.Logger
	sys       buildSystem
	repo      string // absolute path of the extracted snapshot
	container *buildContainer
	stats     models.TestStats
}

var _ interfaces.BuildHandler = (*Handler)(nil)

func newHandler(logger *common.Logger, sys buildSystem, repo string) (*Handler, error) {
	abs, err := filepath.Abs(repo)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repo path: %w", err)
	}
	return &Handler{logger: logger, sys: sys, repo: abs}, nil
}

func (h *Handler) Root() string { return h.repo }

// InjectChanges writes submitted file contents into the snapshot,
// creating parent directories as needed. Paths resolving outside the
// snapshot are rejected.
func (h *Handler) InjectChanges(changes map[string]string) error {
	for name, content := range changes {
		full, ok := confine(h.repo, name)
		if !ok {
			return errors.New("Attempting to write to a file outside the repo. This is not allowed")
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %q: %w", name, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %q: %w", name, err)
		}
		h.logger.Debug().Str("file", name).Msg("Injected change")
	}
	return nil
}

func (h *Handler) Start(ctx context.Context) error {
	c, err := startContainer(ctx, h.logger, h.sys.Image(), h.repo)
	if err != nil {
		return err
	}
	h.container = c
	return nil
}

// Stop tears down the container and deletes the extracted snapshot.
// Safe when Start failed or never ran.
func (h *Handler) Stop() {
	if h.container != nil {
		h.container.teardown()
		h.container = nil
	}
	if err := os.RemoveAll(h.repo); err != nil {
		h.logger.Warn().Err(err).Str("repo", h.repo).Msg("Failed to remove extracted snapshot")
	}
}

func (h *Handler) CompileRepo(ctx context.Context) error {
	out, exit, err := h.container.run(ctx, h.sys.CompileCmd())
	if errors.Is(err, context.DeadlineExceeded) {
		return errFailedToCompile("Compile process killed due to exceeding the 1-hour time limit")
	}
	if err != nil {
		return fmt.Errorf("failed to run compile command: %w", err)
	}
	if exit != 0 {
		return errFailedToCompile(cleanOutput(out))
	}
	return nil
}

func (h *Handler) TestRepo(ctx context.Context) error {
	out, exit, err := h.container.run(ctx, h.sys.TestCmd())
	if errors.Is(err, context.DeadlineExceeded) {
		return errFailedToTest("Test process killed due to exceeding the 1-hour time limit")
	}
	if err != nil {
		return fmt.Errorf("failed to run test command: %w", err)
	}
	cleaned := cleanOutput(out)
	if exit != 0 {
		return errFailedToTest(cleaned)
	}
	stats, err := h.sys.ExtractTestStats(h.repo, cleaned)
	if err != nil {
		return err
	}
	h.stats = stats
	return nil
}

// CleanRepo removes build artifacts. The command's exit status is ignored.
func (h *Handler) CleanRepo(ctx context.Context) error {
	_, _, err := h.container.run(ctx, h.sys.CleanCmd())
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to run clean command: %w", err)
	}
	return nil
}

func (h *Handler) GenerateCoverageReport(ctx context.Context) error {
	return h.generateCoverage(ctx, false)
}

// generateCoverage runs the coverage command. On first failure it injects
// the JaCoCo plugin into the build file and retries once; the original
// build file is restored if the retry fails too.
func (h *Handler) generateCoverage(ctx context.Context, injected bool) error {
	out, exit, err := h.container.run(ctx, h.sys.CoverageCmd())
	if err != nil {
		return fmt.Errorf("failed to run coverage command: %w", err)
	}
	if exit == 0 {
		return nil
	}
	if injected {
		return errCantExecJacoco(cleanOutput(out))
	}

	buildFilePath := filepath.Join(h.repo, h.sys.BuildFile())
	original, err := os.ReadFile(buildFilePath)
	if err != nil {
		return errCantInjectJacoco(h.sys.BuildFile() + " not found")
	}
	patched, err := h.sys.InjectCoveragePlugin(string(original))
	if err != nil {
		return err
	}
	if err := os.WriteFile(buildFilePath, []byte(patched), 0o644); err != nil {
		return errCantInjectJacoco(fmt.Sprintf("failed to rewrite %s: %v", h.sys.BuildFile(), err))
	}
	if err := h.generateCoverage(ctx, true); err != nil {
		if restoreErr := os.WriteFile(buildFilePath, original, 0o644); restoreErr != nil {
			h.logger.Warn().Err(restoreErr).Str("file", buildFilePath).Msg("Failed to restore build file")
		}
		return err
	}
	return nil
}

// CheckCoverage reports every coverage figure found for filename across
// the repository's JaCoCo reports.
func (h *Handler) CheckCoverage(filename string) ([]models.CoverageHit, error) {
	fqc, err := fullyQualifiedClass(h.repo, filename)
	if err != nil {
		return nil, err
	}
	reports, err := h.sys.ReportPaths(h.repo)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(filename)
	var hits []models.CoverageHit
	for _, report := range reports {
		pct, err := coverageForClass(report, fqc, base)
		if err != nil {
			h.logger.Warn().Err(err).Str("report", report).Msg("Skipping unreadable coverage report")
			continue
		}
		if pct < 0 {
			continue
		}
		hits = append(hits, models.CoverageHit{Report: report, Percent: pct})
	}
	if len(hits) == 0 {
		return nil, errFileNotCovered(fmt.Sprintf(
			"File %q didn't have any coverage in any of the jacoco reports: %s",
			filename, strings.Join(reports, ", ")))
	}
	return hits, nil
}

func (h *Handler) Stats() models.TestStats { return h.stats }
