package buildhandler

import (
	"context"
	"time"

	"github.com/crab-bench/crab-server/internal/interfaces"
	"github.com/crab-bench/crab-server/internal/models"
)

// mockStepDelay makes mock builds slow enough to watch progress events
// arrive during manual testing.
var mockStepDelay = time.Second

// mockHandler pretends every build step succeeds after a short sleep.
type mockHandler struct{}

var _ interfaces.BuildHandler = mockHandler{}

func newMockHandler() mockHandler { return mockHandler{} }

func (mockHandler) Root() string { return "" }

func (mockHandler) InjectChanges(map[string]string) error { return nil }

func (mockHandler) Start(context.Context) error { return nil }

func (mockHandler) Stop() {}

func (mockHandler) CleanRepo(context.Context) error { return nil }

func (mockHandler) GenerateCoverageReport(context.Context) error { return nil }

func (mockHandler) Stats() models.TestStats { return models.TestStats{} }

func (mockHandler) CompileRepo(ctx context.Context) error { return mockSleep(ctx) }

func (mockHandler) TestRepo(ctx context.Context) error { return mockSleep(ctx) }

func (mockHandler) CheckCoverage(string) ([]models.CoverageHit, error) {
	return nil, nil
}

func mockSleep(ctx context.Context) error {
	select {
	case <-time.After(mockStepDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
