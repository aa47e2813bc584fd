package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryMetadata_ArchiveName(t *testing.T) {
	meta := EntryMetadata{Repo: "apache/commons-lang", PRNumber: 1024}

	assert.Equal(t, "apache_commons-lang_1024_merged.tar.gz", meta.ArchiveName(ArchiveStateMerged))
	assert.Equal(t, "apache_commons-lang_1024_base.tar.gz", meta.ArchiveName(ArchiveStateBase))
}

func TestEntryMetadata_ArchiveNameByID(t *testing.T) {
	meta := EntryMetadata{ID: "abc123", Repo: "apache/commons-lang", PRNumber: 1024}

	assert.Equal(t, "abc123_merged.tar.gz", meta.ArchiveNameByID(ArchiveStateMerged))
}

func TestComment_UnmarshalNullEndpoints(t *testing.T) {
	var c Comment
	require.NoError(t, json.Unmarshal([]byte(`{"body":"b","file":"f","from":null,"to":3,"paraphrases":[]}`), &c))

	assert.Nil(t, c.FromLine)
	require.NotNil(t, c.ToLine)
	assert.Equal(t, 3, *c.ToLine)
}

func TestDataset_UnmarshalEntries(t *testing.T) {
	doc := `{
		"entries": [{
			"metadata": {
				"id": "x",
				"repo": "o/r",
				"pr_number": 7,
				"pr_title": "t",
				"pr_body": "b",
				"merge_commit_sha": "deadbeef",
				"build_system": "maven",
				"selection": {"comment_suggests_change": true, "diff_after_address_change": null}
			},
			"comments": [{"body":"Fix typo","file":"a.java","from":10,"to":12,"paraphrases":["fix the typo"]}]
		}]
	}`

	var ds Dataset
	require.NoError(t, json.Unmarshal([]byte(doc), &ds))
	require.Len(t, ds.Entries, 1)

	entry := ds.Entries[0]
	assert.Equal(t, "x", entry.Metadata.ID)
	assert.Equal(t, "maven", entry.Metadata.BuildSystem)
	require.NotNil(t, entry.Metadata.Selection)
	assert.True(t, entry.Metadata.Selection.CommentSuggestsChange)
	assert.Nil(t, entry.Metadata.Selection.DiffAfterAddressChange)
	require.Len(t, entry.Comments, 1)
	assert.Equal(t, "Fix typo", entry.Comments[0].Body)
}
