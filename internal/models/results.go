package models

import (
	"encoding/json"
	"fmt"
)

// Distance is the line gap between a proposed comment and the reference
// comment. It serializes as a JSON number, or the string "NA" when either
// range is undefined or the wrong file was targeted.
type Distance struct {
	Valid bool
	Lines int
}

// NewDistance returns a defined distance of n lines.
func NewDistance(n int) Distance { return Distance{Valid: true, Lines: n} }

// DistanceNA returns the undefined distance.
func DistanceNA() Distance { return Distance{} }

func (d Distance) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return json.Marshal("NA")
	}
	return json.Marshal(d.Lines)
}

func (d *Distance) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "NA" {
			return fmt.Errorf("invalid distance string %q", s)
		}
		*d = Distance{}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid distance: %w", err)
	}
	*d = Distance{Valid: true, Lines: n}
	return nil
}

// CommentResult is the per-id outcome of a comment generation evaluation.
type CommentResult struct {
	MaxBleuScore    float64           `json:"max_bleu_score"`
	BleuScores      []float64         `json:"bleu_scores"`
	ProposedComment CommentSubmission `json:"proposed_comment"`
	CorrectFile     bool              `json:"correct_file"`
	Distance        Distance          `json:"distance"`
}

// RefinementResult is the per-id outcome of a code refinement evaluation.
// Step fields carry the order the pipeline runs them; a step that never ran
// is omitted. ChangesInjection only appears when injection failed, matching
// the published result format.
type RefinementResult struct {
	ChangesInjection         *bool  `json:"changes_injection,omitempty"`
	ChangesInjectionErrorMsg string `json:"changes_injection_error_msg,omitempty"`
	Compilation              *bool  `json:"compilation,omitempty"`
	CompilationErrorMsg      string `json:"compilation_error_msg,omitempty"`
	Test                     *bool  `json:"test,omitempty"`
	TestErrorMsg             string `json:"test_error_msg,omitempty"`
}

// TestStats aggregates test counts extracted from build output or reports.
// Gradle leaves counts at -1 when its report lacks the matching counter.
type TestStats struct {
	NTests        int `json:"n_tests"`
	NTestsPassed  int `json:"n_tests_passed"`
	NTestsFailed  int `json:"n_tests_failed"`
	NTestsErrors  int `json:"n_tests_errors"`
	NTestsSkipped int `json:"n_tests_skipped"`
}

// CoverageHit is one report's line-coverage figure for a source file.
// Percent is -1 when the report does not list the class.
type CoverageHit struct {
	Report  string  `json:"report"`
	Percent float64 `json:"percent"`
}
