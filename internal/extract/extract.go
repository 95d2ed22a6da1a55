// Package extract recovers a single JSON value from free-form LLM output.
//
// Recovery strips an outer markdown fence, then takes the greedy span from the
// first opening bracket to the last matching closing bracket. Brackets are not
// balanced: a completion carrying several JSON-like fragments (an example
// object inside explanatory prose, say) is mis-extracted.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type ErrorKind string

const (
	KindNoJSONFound ErrorKind = "no_json_found"
	KindMalformed   ErrorKind = "malformed"
)

// Error reports why no JSON value could be recovered. Raw is always the
// original completion text, never a trimmed or fenced-stripped copy.
type Error struct {
	Kind ErrorKind
	Raw  string
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNoJSONFound:
		return "no JSON value found in completion"
	default:
		if e.Err != nil {
			return fmt.Sprintf("malformed JSON in completion: %v", e.Err)
		}
		return "malformed JSON in completion"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsNoJSON reports whether err is a NoJSONFound extraction failure.
func IsNoJSON(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNoJSONFound
}

// IsMalformed reports whether err is a Malformed extraction failure.
func IsMalformed(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindMalformed
}

// Result is a recovered JSON value.
type Result struct {
	// Value is an object (map[string]any) or array ([]any); numbers are
	// json.Number so they re-serialize verbatim.
	Value any
	// JSON is the compacted candidate text.
	JSON json.RawMessage
	// Raw is the completion the value was recovered from.
	Raw string
}

// Object returns Value as a JSON object, or nil when it is an array.
func (r *Result) Object() map[string]any {
	m, _ := r.Value.(map[string]any)
	return m
}

const fence = "```"

// Extract recovers exactly one JSON object or array from raw.
func Extract(raw string) (*Result, error) {
	text := strings.TrimSpace(raw)
	text = stripFence(text)

	candidate, ok := greedySpan(text)
	if !ok {
		return nil, &Error{Kind: KindNoJSONFound, Raw: raw}
	}

	value, err := Decode([]byte(candidate))
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Raw: raw, Err: err}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(candidate)); err != nil {
		return nil, &Error{Kind: KindMalformed, Raw: raw, Err: err}
	}

	return &Result{Value: value, JSON: compact.Bytes(), Raw: raw}, nil
}

// stripFence removes an opening ``` (with optional language tag) and a
// closing ``` when present. Text that does not start with a fence is
// returned untouched, even if it ends with one.
func stripFence(text string) string {
	if !strings.HasPrefix(text, fence) {
		return text
	}
	text = strings.TrimPrefix(text, fence)
	// Language tag: everything up to the first whitespace or bracket.
	if i := strings.IndexAny(text, " \t\r\n{["); i > 0 {
		text = text[i:]
	} else if i < 0 {
		text = ""
	}
	text = strings.TrimSpace(text)
	if strings.HasSuffix(text, fence) {
		text = strings.TrimSpace(strings.TrimSuffix(text, fence))
	}
	return text
}

// greedySpan returns text from the first '{' or '[' through the last
// matching '}' or ']'. When an opener has no closer after it, the next
// opener is tried.
func greedySpan(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		var closer byte
		switch text[start] {
		case '{':
			closer = '}'
		case '[':
			closer = ']'
		default:
			continue
		}
		end := strings.LastIndexByte(text, closer)
		if end > start {
			return text[start : end+1], true
		}
	}
	return "", false
}

// Decode strictly parses exactly one JSON value, keeping numbers as
// json.Number and rejecting trailing data.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level JSON value")
	}
	return v, nil
}
