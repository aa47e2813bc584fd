package evaluator

import (
	"context"
	"testing"

	"github.com/crab-bench/crab-server/internal/common"
	"github.com/crab-bench/crab-server/internal/models"
)

// --- mocks ---

// mockRefs is an in-memory reference store for tests.
type mockRefs struct {
	entries map[string]*models.DatasetEntry
}

func (m *mockRefs) Lookup(id string) (*models.DatasetEntry, bool) {
	entry, ok := m.entries[id]
	return entry, ok
}

func (m *mockRefs) Len() int { return len(m.entries) }

func intPtr(n int) *int { return &n }

func refEntry(id, repo string, pr int, comment models.Comment) *models.DatasetEntry {
	return &models.DatasetEntry{
		Metadata: models.EntryMetadata{ID: id, Repo: repo, PRNumber: pr},
		Comments: []models.Comment{comment},
	}
}

// --- comment evaluator tests ---

func TestCommentEvaluator_ScoresAgainstParaphrases(t *testing.T) {
	refs := &mockRefs{entries: map[string]*models.DatasetEntry{
		"x": refEntry("x", "apache/commons-lang", 101, models.Comment{
			Body:        "Fix typo",
			File:        "a.java",
			FromLine:    intPtr(10),
			ToLine:      intPtr(12),
			Paraphrases: []string{"fix the typo"},
		}),
	}}
	e := NewCommentEvaluator(common.NewLogger("error"), refs)

	submissions := map[string]models.CommentSubmission{
		"x": {Path: "a.java", FromLine: intPtr(10), ToLine: intPtr(12), Body: "fix typo"},
	}

	var percents []int
	var completed map[string]models.CommentResult
	results, err := e.Evaluate(context.Background(), submissions, []string{"x"},
		func(p int) { percents = append(percents, p) },
		func(r map[string]models.CommentResult) { completed = r },
	)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	res, ok := results["x"]
	if !ok {
		t.Fatal("expected a result for id x")
	}
	if res.MaxBleuScore != 100.0 {
		t.Errorf("expected max score 100.0, got %v", res.MaxBleuScore)
	}
	if len(res.BleuScores) != 2 || res.BleuScores[0] != 100.0 {
		t.Errorf("unexpected scores %v", res.BleuScores)
	}
	if res.BleuScores[1] <= 0 || res.BleuScores[1] >= 100 {
		t.Errorf("paraphrase score out of range: %v", res.BleuScores[1])
	}
	if !res.CorrectFile {
		t.Error("expected correct_file true")
	}
	if !res.Distance.Valid || res.Distance.Lines != 0 {
		t.Errorf("expected distance 0, got %+v", res.Distance)
	}
	if res.ProposedComment.Body != "fix typo" {
		t.Errorf("unexpected proposed comment %+v", res.ProposedComment)
	}

	if len(percents) != 1 || percents[0] != 100 {
		t.Errorf("unexpected progress %v", percents)
	}
	if completed == nil || len(completed) != 1 {
		t.Errorf("completion callback got %v", completed)
	}
}

func TestCommentEvaluator_SkipsUnknownIds(t *testing.T) {
	refs := &mockRefs{entries: map[string]*models.DatasetEntry{
		"known": refEntry("known", "google/gson", 7, models.Comment{
			Body: "Rename this variable", File: "b.java", FromLine: intPtr(3), ToLine: intPtr(3),
		}),
	}}
	e := NewCommentEvaluator(common.NewLogger("error"), refs)

	submissions := map[string]models.CommentSubmission{
		"known":   {Path: "b.java", Body: "rename this variable"},
		"unknown": {Path: "x.java", Body: "whatever"},
	}

	var percents []int
	results, err := e.Evaluate(context.Background(), submissions, []string{"known", "unknown"},
		func(p int) { percents = append(percents, p) }, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(results) != 1 {
		t.Errorf("expected unknown id omitted, got %d results", len(results))
	}
	if _, ok := results["unknown"]; ok {
		t.Error("unknown id must not appear in results")
	}

	// Progress still covers both ids.
	if len(percents) != 2 || percents[0] != 50 || percents[1] != 100 {
		t.Errorf("unexpected progress %v", percents)
	}
}

func TestCommentEvaluator_WrongFile(t *testing.T) {
	refs := &mockRefs{entries: map[string]*models.DatasetEntry{
		"x": refEntry("x", "apache/commons-lang", 101, models.Comment{
			Body: "Fix typo", File: "a.java", FromLine: intPtr(10), ToLine: intPtr(12),
		}),
	}}
	e := NewCommentEvaluator(common.NewLogger("error"), refs)

	submissions := map[string]models.CommentSubmission{
		"x": {Path: "other.java", FromLine: intPtr(10), ToLine: intPtr(12), Body: "fix typo"},
	}
	results, err := e.Evaluate(context.Background(), submissions, []string{"x"}, nil, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	res := results["x"]
	if res.CorrectFile {
		t.Error("expected correct_file false")
	}
	if res.Distance.Valid {
		t.Errorf("expected NA distance for wrong file, got %+v", res.Distance)
	}
}

func TestCommentEvaluator_EmptySubmissions(t *testing.T) {
	e := NewCommentEvaluator(common.NewLogger("error"), &mockRefs{})

	fired := false
	var percents []int
	results, err := e.Evaluate(context.Background(), map[string]models.CommentSubmission{}, nil,
		func(p int) { percents = append(percents, p) },
		func(map[string]models.CommentResult) { fired = true },
	)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %v", results)
	}
	if len(percents) != 0 {
		t.Errorf("expected no progress events, got %v", percents)
	}
	if !fired {
		t.Error("completion callback must fire even for empty input")
	}
}

func TestCommentEvaluator_CancelledContext(t *testing.T) {
	refs := &mockRefs{entries: map[string]*models.DatasetEntry{
		"x": refEntry("x", "a/b", 1, models.Comment{Body: "c", File: "f"}),
	}}
	e := NewCommentEvaluator(common.NewLogger("error"), refs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fired := false
	_, err := e.Evaluate(ctx, map[string]models.CommentSubmission{"x": {Path: "f", Body: "c"}},
		[]string{"x"}, nil, func(map[string]models.CommentResult) { fired = true })
	if err == nil {
		t.Fatal("expected context error")
	}
	if fired {
		t.Error("completion callback must not fire on cancellation")
	}
}

// --- distance tests ---

func TestCommentDistance(t *testing.T) {
	tests := []struct {
		name                   string
		subFrom, subTo         *int
		refFrom, refTo         *int
		wantValid              bool
		wantLines              int
	}{
		{
			name:    "overlap at one point",
			subFrom: intPtr(1), subTo: intPtr(5),
			refFrom: intPtr(5), refTo: intPtr(9),
			wantValid: true, wantLines: 0,
		},
		{
			name:    "contained ranges",
			subFrom: intPtr(3), subTo: intPtr(4),
			refFrom: intPtr(1), refTo: intPtr(10),
			wantValid: true, wantLines: 0,
		},
		{
			name:    "submission below reference",
			subFrom: intPtr(1), subTo: intPtr(3),
			refFrom: intPtr(5), refTo: intPtr(9),
			wantValid: true, wantLines: 2,
		},
		{
			name:    "submission above reference",
			subFrom: intPtr(12), subTo: intPtr(14),
			refFrom: intPtr(5), refTo: intPtr(9),
			wantValid: true, wantLines: 3,
		},
		{
			name:    "nil endpoints collapse to single lines",
			subFrom: intPtr(4), subTo: nil,
			refFrom: nil, refTo: intPtr(6),
			wantValid: true, wantLines: 2,
		},
		{
			name:    "reversed endpoints normalize",
			subFrom: intPtr(5), subTo: intPtr(1),
			refFrom: intPtr(9), refTo: intPtr(6),
			wantValid: true, wantLines: 1,
		},
		{
			name:    "submission range undefined",
			subFrom: nil, subTo: nil,
			refFrom: intPtr(1), refTo: intPtr(2),
			wantValid: false,
		},
		{
			name:    "reference range undefined",
			subFrom: intPtr(1), subTo: intPtr(2),
			refFrom: nil, refTo: nil,
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := commentDistance(tt.subFrom, tt.subTo, tt.refFrom, tt.refTo)
			if d.Valid != tt.wantValid {
				t.Fatalf("valid = %v, want %v", d.Valid, tt.wantValid)
			}
			if d.Valid && d.Lines != tt.wantLines {
				t.Errorf("lines = %d, want %d", d.Lines, tt.wantLines)
			}
		})
	}
}
