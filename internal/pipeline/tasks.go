package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"

	"bizapi/internal/extract"
	"bizapi/internal/prompt"
)

// Validator checks an extracted value against the shape a task expects.
type Validator func(*extract.Result) error

// Task is the per-route configuration of a pipeline run.
type Task struct {
	Name     string
	Template prompt.Template
	// JSONMode requests provider-side JSON output where supported.
	JSONMode bool
	// Cacheable tasks memoize results by Request.CacheKey.
	Cacheable bool
	Validate  Validator
}

// Built-in tasks. Only the ESG score is cached: its input space is a
// company name; every other task is keyed by free text or a live page.
var (
	ESGScore = Task{
		Name:      "esg-score",
		Template:  prompt.ESGScore,
		JSONMode:  true,
		Cacheable: true,
		Validate:  All(Object, Field("esg_score", isNumber, "a number")),
	}
	FormatJSON = Task{
		Name:     "format-json",
		Template: prompt.FormatJSON,
		JSONMode: true,
	}
	TextToJSON = Task{
		Name:     "text-to-json",
		Template: prompt.TextToJSON,
		JSONMode: true,
	}
	WebExtract = Task{
		Name:     "web-extract",
		Template: prompt.WebExtract,
		JSONMode: true,
	}
	ConditionCheck = Task{
		Name:     "condition-check",
		Template: prompt.ConditionCheck,
		JSONMode: true,
		Validate: All(Object, Field("condition_met", isBool, "a boolean")),
	}
	NicheSummary = Task{
		Name:     "niche-data",
		Template: prompt.NicheSummary,
		JSONMode: true,
		Validate: All(Object, Field("key_trends", isArray, "an array")),
	}
)

// All runs validators in order and returns the first failure.
func All(vs ...Validator) Validator {
	return func(r *extract.Result) error {
		for _, v := range vs {
			if err := v(r); err != nil {
				return err
			}
		}
		return nil
	}
}

// Object requires the top-level value to be a JSON object.
func Object(r *extract.Result) error {
	if r.Object() == nil {
		return errors.New("expected a JSON object")
	}
	return nil
}

// Field checks the type of an object member. Missing and null members pass:
// the prompt contract tells the model to use null for unknown fields.
func Field(name string, ok func(any) bool, want string) Validator {
	return func(r *extract.Result) error {
		obj := r.Object()
		if obj == nil {
			return nil
		}
		v, present := obj[name]
		if !present || v == nil || ok(v) {
			return nil
		}
		return fmt.Errorf("field %q must be %s, got %T", name, want, v)
	}
}

func isNumber(v any) bool {
	_, ok := v.(json.Number)
	return ok
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

func isArray(v any) bool {
	_, ok := v.([]any)
	return ok
}
