package evaluator

import (
	"context"
	"math"
	"time"

	"github.com/crab-bench/crab-server/internal/common"
	"github.com/crab-bench/crab-server/internal/interfaces"
	"github.com/crab-bench/crab-server/internal/models"
)

// RefinementEvaluator applies submitted file changes to extracted PR
// snapshots and compiles and tests them inside build containers. Each id
// contributes four progress steps: setup, injection, compile, test.
type RefinementEvaluator struct {
	logger       *common.Logger
	refs         interfaces.ReferenceStore
	resolver     interfaces.BuildResolver
	archivesRoot string
	stepTimeout  time.Duration
}

// NewRefinementEvaluator creates a refinement evaluator. stepTimeout
// bounds each compile and test invocation; zero means one hour.
func NewRefinementEvaluator(
	logger *common.Logger,
	refs interfaces.ReferenceStore,
	resolver interfaces.BuildResolver,
	archivesRoot string,
	stepTimeout time.Duration,
) *RefinementEvaluator {
	if stepTimeout <= 0 {
		stepTimeout = time.Hour
	}
	return &RefinementEvaluator{
		logger:       logger,
		refs:         refs,
		resolver:     resolver,
		archivesRoot: archivesRoot,
		stepTimeout:  stepTimeout,
	}
}

// Evaluate runs each submission in document order. Unknown ids and
// archives that cannot be set up are skipped with a warning; every other
// failure is captured per id and the loop continues. completeCB fires
// once with the final results.
func (e *RefinementEvaluator) Evaluate(
	ctx context.Context,
	submissions map[string]map[string]string,
	order []string,
	percentCB func(int),
	completeCB func(map[string]models.RefinementResult),
) (map[string]models.RefinementResult, error) {
	results := make(map[string]models.RefinementResult, len(order))
	totalSteps := len(order) * 4
	current := 0

	report := func() {
		if percentCB != nil && totalSteps > 0 {
			percentCB(int(math.Round(float64(current) / float64(totalSteps) * 100)))
		}
	}
	advance := func() {
		current++
		report()
	}

	for i, id := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current = i * 4
		report()

		entry, ok := e.refs.Lookup(id)
		if !ok {
			e.logger.Warn().Str("id", id).Msg("Submission id not in reference dataset, skipping")
			continue
		}

		handler, err := e.resolver.Resolve(e.archivesRoot, entry.Metadata.ArchiveName(models.ArchiveStateMerged))
		if err != nil {
			e.logger.Warn().Err(err).Str("id", id).Msg("Could not set up build handler, skipping")
			continue
		}
		advance()

		results[id] = e.runEntry(ctx, handler, submissions[id], advance)
	}

	if completeCB != nil {
		completeCB(results)
	}
	return results, nil
}

// runEntry injects the changes and runs the build steps. The container
// and the extracted directory are released on every exit path.
func (e *RefinementEvaluator) runEntry(
	ctx context.Context,
	handler interfaces.BuildHandler,
	changes map[string]string,
	advance func(),
) models.RefinementResult {
	defer handler.Stop()

	var res models.RefinementResult
	if err := handler.InjectChanges(changes); err != nil {
		res.ChangesInjection = boolPtr(false)
		res.ChangesInjectionErrorMsg = err.Error()
		return res
	}
	advance()

	if err := handler.Start(ctx); err != nil {
		res.Compilation = boolPtr(false)
		res.CompilationErrorMsg = err.Error()
		return res
	}

	if err := e.runStep(ctx, handler.CompileRepo); err != nil {
		res.Compilation = boolPtr(false)
		res.CompilationErrorMsg = err.Error()
		return res
	}
	res.Compilation = boolPtr(true)
	advance()

	if err := e.runStep(ctx, handler.TestRepo); err != nil {
		res.Test = boolPtr(false)
		res.TestErrorMsg = err.Error()
		return res
	}
	res.Test = boolPtr(true)
	advance()

	return res
}

// runStep bounds one container command with the step timeout.
func (e *RefinementEvaluator) runStep(ctx context.Context, step func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()
	return step(stepCtx)
}

func boolPtr(b bool) *bool {
	return &b
}
