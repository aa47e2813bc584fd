// Package evaluator grades submissions against the reference dataset.
package evaluator

import (
	"context"
	"math"

	"github.com/crab-bench/crab-server/internal/bleu"
	"github.com/crab-bench/crab-server/internal/common"
	"github.com/crab-bench/crab-server/internal/interfaces"
	"github.com/crab-bench/crab-server/internal/models"
)

// CommentEvaluator scores submitted review comments with sentence BLEU
// against the reference comment and its paraphrases.
type CommentEvaluator struct {
	logger *common.Logger
	refs   interfaces.ReferenceStore
}

// NewCommentEvaluator creates a comment evaluator over the reference store.
func NewCommentEvaluator(logger *common.Logger, refs interfaces.ReferenceStore) *CommentEvaluator {
	return &CommentEvaluator{logger: logger, refs: refs}
}

// Evaluate scores each submission in document order. Unknown ids are
// skipped with a warning and omitted from the results. Progress is
// reported after every id; completeCB fires once with the final results.
func (e *CommentEvaluator) Evaluate(
	ctx context.Context,
	submissions map[string]models.CommentSubmission,
	order []string,
	percentCB func(int),
	completeCB func(map[string]models.CommentResult),
) (map[string]models.CommentResult, error) {
	results := make(map[string]models.CommentResult, len(order))
	total := len(order)

	for i, id := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if entry, ok := e.refs.Lookup(id); ok && len(entry.Comments) > 0 {
			results[id] = e.scoreComment(submissions[id], entry)
		} else {
			e.logger.Warn().Str("id", id).Msg("Submission id not in reference dataset, skipping")
		}

		if percentCB != nil {
			percentCB(stepPercent(i+1, total))
		}
	}

	if completeCB != nil {
		completeCB(results)
	}
	return results, nil
}

// scoreComment grades one submission against comments[0] of its entry.
func (e *CommentEvaluator) scoreComment(sub models.CommentSubmission, entry *models.DatasetEntry) models.CommentResult {
	ref := entry.Comments[0]

	candidates := make([]string, 0, 1+len(ref.Paraphrases))
	candidates = append(candidates, ref.Body)
	candidates = append(candidates, ref.Paraphrases...)

	maxScore := 0.0
	scores := make([]float64, 0, len(candidates))
	for _, candidate := range candidates {
		score := round2(bleu.Sentence(sub.Body, []string{candidate}))
		scores = append(scores, score)
		if score > maxScore {
			maxScore = score
		}
	}

	correctFile := sub.Path == ref.File
	distance := models.DistanceNA()
	if correctFile {
		distance = commentDistance(sub.FromLine, sub.ToLine, ref.FromLine, ref.ToLine)
	}

	return models.CommentResult{
		MaxBleuScore:    maxScore,
		BleuScores:      scores,
		ProposedComment: sub,
		CorrectFile:     correctFile,
		Distance:        distance,
	}
}

// stepPercent maps progress i of total onto 0-100.
func stepPercent(i, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(i) / float64(total) * 100))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
