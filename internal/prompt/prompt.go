// Package prompt renders the instruction text sent to the completion
// provider. Rendering is a pure function of its inputs so that identical
// requests produce byte-identical prompts.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"bizapi/internal/normalize"
)

// MaxInputChars bounds the embedded document. Fetched pages are truncated
// to this length by the normalizer; posted text longer than it is rejected
// by Build.
const MaxInputChars = normalize.MaxChars

// DirectivePlaceholder marks where the caller's directive is inserted into
// a template instruction.
const DirectivePlaceholder = "{directive}"

// OutputContract is appended to every prompt.
const OutputContract = "Output contract: emit exactly one JSON value. Do not wrap it in markdown code fences. " +
	"Do not add any prose before or after it. Any field you cannot determine must be null."

var ErrInputTooLarge = errors.New("document exceeds the maximum prompt input size")

// Template is the per-task part of a prompt.
type Template struct {
	Task string
	// Instruction states the task; DirectivePlaceholder is replaced with the
	// caller's directive verbatim.
	Instruction string
	// Shape optionally describes the expected JSON structure.
	Shape string
	// DocumentLabel heads the embedded document. Templates without a label
	// take no document.
	DocumentLabel string
}

// Prompt is a rendered instruction.
type Prompt struct {
	Task string
	Text string
}

// Build renders tpl for directive and doc.
func Build(tpl Template, directive string, doc normalize.Document) (Prompt, error) {
	if n := utf8.RuneCountInString(doc.Text); n > MaxInputChars {
		return Prompt{}, fmt.Errorf("%w: %d characters, limit %d", ErrInputTooLarge, n, MaxInputChars)
	}

	var b strings.Builder
	b.WriteString(strings.ReplaceAll(tpl.Instruction, DirectivePlaceholder, directive))
	b.WriteString("\n\n")
	b.WriteString(OutputContract)
	if tpl.Shape != "" {
		b.WriteString("\nExpected shape: ")
		b.WriteString(tpl.Shape)
	}
	if tpl.DocumentLabel != "" {
		b.WriteString("\n\n[")
		b.WriteString(tpl.DocumentLabel)
		b.WriteString("]\n")
		b.WriteString(doc.Text)
	}

	return Prompt{Task: tpl.Task, Text: b.String()}, nil
}
