package models

import (
	"fmt"
	"strings"
)

// Archive states name which snapshot of a PR's repository a tarball holds.
const (
	ArchiveStateBase   = "base"   // parent of the merge commit
	ArchiveStateMerged = "merged" // post-merge tree, used for refinement runs
)

// ReasonStillProcessing marks dataset rows whose extraction never finished.
// They are dropped at load time unless explicitly kept.
const ReasonStillProcessing = "Was still being processed"

// Comment is a reference review comment attached to a dataset entry.
// Line endpoints may be absent when the comment was file-level.
type Comment struct {
	Body        string   `json:"body"`
	File        string   `json:"file"`
	FromLine    *int     `json:"from"`
	ToLine      *int     `json:"to"`
	Paraphrases []string `json:"paraphrases"`
}

// Selection records the manual triage outcome for a dataset entry.
type Selection struct {
	CommentSuggestsChange  bool  `json:"comment_suggests_change"`
	DiffAfterAddressChange *bool `json:"diff_after_address_change"`
}

// EntryMetadata describes the pull request a dataset entry was built from.
type EntryMetadata struct {
	ID               string     `json:"id"`
	Repo             string     `json:"repo"` // "owner/name"
	PRNumber         int        `json:"pr_number"`
	PRTitle          string     `json:"pr_title"`
	PRBody           string     `json:"pr_body"`
	MergeCommitSHA   string     `json:"merge_commit_sha"`
	IsCovered        *bool      `json:"is_covered,omitempty"`
	IsCodeRelated    *bool      `json:"is_code_related,omitempty"`
	Successful       *bool      `json:"successful,omitempty"`
	BuildSystem      string     `json:"build_system,omitempty"`
	ReasonForFailure string     `json:"reason_for_failure,omitempty"`
	LastCmdErrorMsg  string     `json:"last_cmd_error_msg,omitempty"`
	Selection        *Selection `json:"selection,omitempty"`
}

// ArchiveName returns the tarball holding this entry's repository snapshot,
// e.g. "apache_commons-lang_1024_merged.tar.gz".
func (m *EntryMetadata) ArchiveName(state string) string {
	repo := strings.ReplaceAll(m.Repo, "/", "_")
	return fmt.Sprintf("%s_%d_%s.tar.gz", repo, m.PRNumber, state)
}

// ArchiveNameByID returns the id-keyed tarball name used by newer dataset dumps.
func (m *EntryMetadata) ArchiveNameByID(state string) string {
	return fmt.Sprintf("%s_%s.tar.gz", m.ID, state)
}

// DatasetEntry pairs PR metadata with its reference comments.
// Only comments[0] drives comment generation scoring.
type DatasetEntry struct {
	Metadata EntryMetadata `json:"metadata"`
	Comments []Comment     `json:"comments"`
}

// Dataset is the on-disk reference dataset shape.
type Dataset struct {
	Entries []DatasetEntry `json:"entries"`
}
