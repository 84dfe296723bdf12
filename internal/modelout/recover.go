// Package modelout salvages structured content from raw model responses.
// Generation calls ask the model for JSON, but responses arrive wrapped in
// markdown fences, prefixed with prose, or cut off mid-record when the
// completion hits its token limit. Everything here fails open: input that
// cannot be salvaged yields an empty result, never an error.
package modelout

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Records decodes a raw model response into its list of records. The strict
// decode is tried first; on malformed syntax the response is repaired by
// dropping any preamble before the array, truncating at the end of the last
// complete record and closing the array again. An empty slice means "nothing
// useful this round" and is not an error.
func Records(raw string) []json.RawMessage {
	s := stripFences(raw)
	if s == "" {
		return nil
	}

	if recs, ok := decodeRecords(s); ok {
		return recs
	}

	start := strings.IndexByte(s, '[')
	if start < 0 {
		return nil
	}
	s = s[start:]

	// Cut at the last "}," — the end of the last record the model finished
	// before the response was truncated. This assumes record separators do
	// not appear inside string values; a record whose text field contains
	// a literal "}," can be cut short here.
	cut := strings.LastIndex(s, "},")
	if cut < 0 {
		return nil
	}
	if recs, ok := decodeRecords(s[:cut+1] + "]"); ok {
		return recs
	}
	return nil
}

// Decode recovers the records of a raw response and unmarshals each into T,
// dropping records that do not match the expected shape.
func Decode[T any](raw string) []T {
	recs := Records(raw)
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := json.Unmarshal(rec, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// decodeRecords reports ok when s is valid JSON. An array decodes to its
// elements; an object decodes to its first array-valued field in document
// order; any other valid payload decodes to no records.
func decodeRecords(s string) ([]json.RawMessage, bool) {
	var top json.RawMessage
	if err := json.Unmarshal([]byte(s), &top); err != nil {
		return nil, false
	}

	switch firstByte(top) {
	case '[':
		var recs []json.RawMessage
		if err := json.Unmarshal(top, &recs); err != nil {
			return nil, false
		}
		return recs, true
	case '{':
		return firstArrayField(top), true
	}
	return nil, true
}

// firstArrayField walks the object's top-level fields in the order they
// appear and returns the first array value. Map iteration would not keep
// document order, so the token stream is walked instead.
func firstArrayField(obj json.RawMessage) []json.RawMessage {
	dec := json.NewDecoder(bytes.NewReader(obj))
	if _, err := dec.Token(); err != nil {
		return nil
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil
		}
		if firstByte(val) == '[' {
			var recs []json.RawMessage
			if err := json.Unmarshal(val, &recs); err != nil {
				return nil
			}
			return recs
		}
	}
	return nil
}

func firstByte(raw json.RawMessage) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

// stripFences removes a BOM and markdown code fences like ```json ... ```
// that models wrap around structured output.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "\uFEFF")

	if strings.HasPrefix(s, "```") {
		start := 3
		// Skip the language identifier line, e.g. "json".
		if nl := strings.Index(s[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(s[start:], "```"); end != -1 {
			s = s[start : start+end]
		} else {
			s = s[start:]
		}
	}

	return strings.TrimSpace(s)
}
