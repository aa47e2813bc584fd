package models

import (
	"bytes"
	"encoding/json"
	"io"
)

// InvalidFormatError reports a submission payload that failed validation.
// Its message is returned verbatim to the client.
type InvalidFormatError struct {
	Message string
}

func (e *InvalidFormatError) Error() string { return e.Message }

// NewInvalidFormatError builds an InvalidFormatError, falling back to the
// generic message when none is given.
func NewInvalidFormatError(msg string) *InvalidFormatError {
	if msg == "" {
		msg = "JSON must be an object mapping strings to strings"
	}
	return &InvalidFormatError{Message: msg}
}

// CommentSubmission is one proposed review comment keyed by dataset entry id.
// The legacy payload shape is a bare string holding only the comment body.
type CommentSubmission struct {
	Path     string `json:"path"`
	FromLine *int   `json:"line_from"`
	ToLine   *int   `json:"line_to"`
	Body     string `json:"body"`
}

// ParseCommentSubmissions validates data as a comment generation payload.
// Ids are returned in document order, which drives progress reporting
// during evaluation.
func ParseCommentSubmissions(data []byte) (map[string]CommentSubmission, []string, error) {
	raw, ids, err := decodeOrderedObject(data)
	if err != nil {
		return nil, nil, err
	}

	subs := make(map[string]CommentSubmission, len(ids))
	for _, id := range ids {
		sub, err := parseCommentSubmission(raw[id])
		if err != nil {
			return nil, nil, err
		}
		subs[id] = sub
	}
	return subs, ids, nil
}

func parseCommentSubmission(raw json.RawMessage) (CommentSubmission, error) {
	// Legacy shape: the value is the comment body itself.
	if !isJSONNull(raw) {
		var body string
		if err := json.Unmarshal(raw, &body); err == nil {
			return CommentSubmission{Body: body}, nil
		}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return CommentSubmission{}, NewInvalidFormatError(
			"Submitted json object must only be str -> str. Namely id -> comment")
	}

	sub := CommentSubmission{}
	var ok bool
	if sub.Path, ok = stringField(fields, "path"); !ok {
		return CommentSubmission{}, errMissingFields()
	}
	if sub.Body, ok = stringField(fields, "body"); !ok {
		return CommentSubmission{}, errMissingFields()
	}
	if sub.FromLine, ok = intPtrField(fields, "line_from"); !ok {
		return CommentSubmission{}, errMissingFields()
	}
	if sub.ToLine, ok = intPtrField(fields, "line_to"); !ok {
		return CommentSubmission{}, errMissingFields()
	}
	return sub, nil
}

func errMissingFields() error {
	return NewInvalidFormatError("Submitted json doesn't contain the required fields")
}

// ParseRefinementSubmissions validates data as a code refinement payload:
// id -> filename -> file contents, strings throughout. Ids are returned in
// document order.
func ParseRefinementSubmissions(data []byte) (map[string]map[string]string, []string, error) {
	raw, ids, err := decodeOrderedObject(data)
	if err != nil {
		return nil, nil, err
	}

	subs := make(map[string]map[string]string, len(ids))
	for _, id := range ids {
		var files map[string]json.RawMessage
		if err := json.Unmarshal(raw[id], &files); err != nil || files == nil {
			return nil, nil, errRefinementShape()
		}
		changes := make(map[string]string, len(files))
		for name, content := range files {
			var text string
			if isJSONNull(content) || json.Unmarshal(content, &text) != nil {
				return nil, nil, errRefinementShape()
			}
			changes[name] = text
		}
		subs[id] = changes
	}
	return subs, ids, nil
}

func errRefinementShape() error {
	return NewInvalidFormatError(
		"Submitted json object must only be str -> (str -> str). Namely id -> filename -> contents")
}

// decodeOrderedObject parses a top-level JSON object keeping key order,
// leaving values raw. Duplicate keys keep their first position and the
// last value.
func decodeOrderedObject(data []byte) (map[string]json.RawMessage, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, NewInvalidFormatError("")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, NewInvalidFormatError("Submitted json doesn't contain an object")
	}

	raw := make(map[string]json.RawMessage)
	var ids []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, NewInvalidFormatError("")
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, NewInvalidFormatError("")
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, nil, NewInvalidFormatError("")
		}
		if _, dup := raw[key]; !dup {
			ids = append(ids, key)
		}
		raw[key] = value
	}
	if _, err := dec.Token(); err != nil { // closing brace
		return nil, nil, NewInvalidFormatError("")
	}
	if _, err := dec.Token(); err != io.EOF { // trailing garbage
		return nil, nil, NewInvalidFormatError("")
	}
	return raw, ids, nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok || isJSONNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// intPtrField treats an absent or null endpoint as valid (nil).
func intPtrField(fields map[string]json.RawMessage, key string) (*int, bool) {
	raw, ok := fields[key]
	if !ok || isJSONNull(raw) {
		return nil, true
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, false
	}
	return &n, true
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
