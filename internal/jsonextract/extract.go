// Package jsonextract implements the bounded JSON object extractor (§4.2):
// recover the first balanced top-level {...} object from noisy model output.
package jsonextract

import (
	"encoding/json"
	"errors"
)

// ErrNotFound is the sentinel behind JSON_NOT_FOUND: no balanced object was
// found in the input at all.
var ErrNotFound = errors.New("JSON_NOT_FOUND: no balanced object found")

// ParseError wraps a parse failure of an otherwise-balanced candidate slice,
// behind JSON_PARSE_ERROR.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string {
	return "JSON_PARSE_ERROR: " + e.Cause.Error()
}

func (e *ParseError) Unwrap() error { return e.Cause }

// Extract returns the first balanced top-level JSON object in s, parsed into
// a map. It first tries a whole-string parse; on failure it scans for the
// first '{' and tracks brace depth plus string/escape state until depth
// returns to zero, then parses that slice. The root must be an object.
func Extract(s string) (map[string]any, error) {
	if obj, err := tryParseObject(s); err == nil {
		return obj, nil
	}

	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if start == -1 {
			if c == '{' {
				start = i
				depth = 1
				inString = false
				escaped = false
			}
			continue
		}

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				obj, err := tryParseObject(candidate)
				if err != nil {
					return nil, &ParseError{Cause: err}
				}
				return obj, nil
			}
		}
	}

	return nil, ErrNotFound
}

func tryParseObject(s string) (map[string]any, error) {
	var raw any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New("root value is not an object")
	}
	return obj, nil
}
