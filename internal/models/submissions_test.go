package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommentSubmissions_TypedShape(t *testing.T) {
	data := []byte(`{"x": {"path":"a.java","line_from":10,"line_to":12,"body":"fix typo"}}`)

	subs, ids, err := ParseCommentSubmissions(data)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, ids)

	sub := subs["x"]
	assert.Equal(t, "a.java", sub.Path)
	assert.Equal(t, "fix typo", sub.Body)
	require.NotNil(t, sub.FromLine)
	require.NotNil(t, sub.ToLine)
	assert.Equal(t, 10, *sub.FromLine)
	assert.Equal(t, 12, *sub.ToLine)
}

func TestParseCommentSubmissions_LegacyShape(t *testing.T) {
	data := []byte(`{"x": "just a comment body"}`)

	subs, ids, err := ParseCommentSubmissions(data)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, ids)

	sub := subs["x"]
	assert.Equal(t, "", sub.Path)
	assert.Nil(t, sub.FromLine)
	assert.Nil(t, sub.ToLine)
	assert.Equal(t, "just a comment body", sub.Body)
}

func TestParseCommentSubmissions_NullEndpointsAllowed(t *testing.T) {
	data := []byte(`{"x": {"path":"a.java","line_from":null,"line_to":null,"body":"b"}}`)

	subs, _, err := ParseCommentSubmissions(data)
	require.NoError(t, err)
	assert.Nil(t, subs["x"].FromLine)
	assert.Nil(t, subs["x"].ToLine)
}

func TestParseCommentSubmissions_AbsentEndpointsAllowed(t *testing.T) {
	data := []byte(`{"x": {"path":"a.java","body":"b"}}`)

	subs, _, err := ParseCommentSubmissions(data)
	require.NoError(t, err)
	assert.Nil(t, subs["x"].FromLine)
	assert.Nil(t, subs["x"].ToLine)
}

func TestParseCommentSubmissions_PreservesDocumentOrder(t *testing.T) {
	data := []byte(`{"zz": "a", "aa": "b", "mm": "c"}`)

	_, ids, err := ParseCommentSubmissions(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"zz", "aa", "mm"}, ids)
}

func TestParseCommentSubmissions_NotAnObject(t *testing.T) {
	for _, data := range []string{`[1,2]`, `"str"`, `42`, `null`} {
		_, _, err := ParseCommentSubmissions([]byte(data))
		require.Error(t, err, "input %s", data)

		var ife *InvalidFormatError
		require.True(t, errors.As(err, &ife))
		assert.Equal(t, "Submitted json doesn't contain an object", ife.Message)
	}
}

func TestParseCommentSubmissions_MalformedJSON(t *testing.T) {
	_, _, err := ParseCommentSubmissions([]byte(`{"x": `))
	require.Error(t, err)

	var ife *InvalidFormatError
	require.True(t, errors.As(err, &ife))
	assert.Equal(t, "JSON must be an object mapping strings to strings", ife.Message)
}

func TestParseCommentSubmissions_TrailingGarbage(t *testing.T) {
	_, _, err := ParseCommentSubmissions([]byte(`{"x": "ok"} trailing`))
	assert.Error(t, err)
}

func TestParseCommentSubmissions_BadValueType(t *testing.T) {
	for _, data := range []string{`{"x": 5}`, `{"x": [1]}`, `{"x": null}`} {
		_, _, err := ParseCommentSubmissions([]byte(data))
		require.Error(t, err, "input %s", data)

		var ife *InvalidFormatError
		require.True(t, errors.As(err, &ife))
		assert.Equal(t, "Submitted json object must only be str -> str. Namely id -> comment", ife.Message)
	}
}

func TestParseCommentSubmissions_MissingRequiredFields(t *testing.T) {
	cases := []string{
		`{"x": {"body":"b"}}`,                                  // no path
		`{"x": {"path":"p"}}`,                                  // no body
		`{"x": {"path":5,"body":"b"}}`,                         // path not a string
		`{"x": {"path":"p","body":null}}`,                      // body null
		`{"x": {"path":"p","body":"b","line_from":"ten"}}`,     // endpoint not an int
		`{"x": {"path":"p","body":"b","line_to":1.5}}`,         // endpoint not integral
		`{"x": {"path":"p","body":"b","line_from":{"a":1}}}`,   // endpoint wrong type
	}
	for _, data := range cases {
		_, _, err := ParseCommentSubmissions([]byte(data))
		require.Error(t, err, "input %s", data)

		var ife *InvalidFormatError
		require.True(t, errors.As(err, &ife))
		assert.Equal(t, "Submitted json doesn't contain the required fields", ife.Message)
	}
}

func TestParseCommentSubmissions_RoundTrip(t *testing.T) {
	data := []byte(`{"x": {"path":"a.java","line_from":10,"line_to":null,"body":"fix typo"}}`)

	subs, _, err := ParseCommentSubmissions(data)
	require.NoError(t, err)

	out, err := json.Marshal(subs)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(out))
}

func TestParseRefinementSubmissions_Valid(t *testing.T) {
	data := []byte(`{"id1": {"src/Main.java": "class Main {}", "README.md": "hi"}}`)

	subs, ids, err := ParseRefinementSubmissions(data)
	require.NoError(t, err)
	require.Equal(t, []string{"id1"}, ids)
	assert.Equal(t, "class Main {}", subs["id1"]["src/Main.java"])
	assert.Equal(t, "hi", subs["id1"]["README.md"])
}

func TestParseRefinementSubmissions_PreservesDocumentOrder(t *testing.T) {
	var keys []string
	doc := "{"
	for i := 9; i >= 0; i-- {
		key := fmt.Sprintf("id%d", i)
		keys = append(keys, key)
		if i < 9 {
			doc += ","
		}
		doc += fmt.Sprintf("%q: {}", key)
	}
	doc += "}"

	_, ids, err := ParseRefinementSubmissions([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, keys, ids)
}

func TestParseRefinementSubmissions_BadShapes(t *testing.T) {
	cases := []string{
		`{"id1": "not an object"}`,
		`{"id1": {"f": 42}}`,
		`{"id1": {"f": null}}`,
		`{"id1": null}`,
		`{"id1": [1,2]}`,
	}
	for _, data := range cases {
		_, _, err := ParseRefinementSubmissions([]byte(data))
		require.Error(t, err, "input %s", data)

		var ife *InvalidFormatError
		assert.True(t, errors.As(err, &ife))
	}
}

func TestParseRefinementSubmissions_EmptyObject(t *testing.T) {
	subs, ids, err := ParseRefinementSubmissions([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, subs)
}
