// Package filter applies jq expressions to command output.
package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/itchyny/gojq"
)

// NormalizeExpression fixes shell-escaped operators in jq expressions.
// Zsh escapes ! to \! even in single quotes, breaking operators like !=.
func NormalizeExpression(expr string) string {
	return strings.ReplaceAll(expr, `\!`, `!`)
}

// compileOptions registers helpers for FME payloads:
//
//	km2   square metres to square kilometres, rounded to 2 decimals
//	param(name)  value of a published parameter in a publishedParameters list
var compileOptions = []gojq.CompilerOption{
	gojq.WithFunction("km2", 0, 0, func(v any, _ []any) any {
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("km2: expected a number but got %T", v)
		}
		return math.Round(f/1e4) / 100
	}),
	gojq.WithFunction("param", 1, 1, func(v any, args []any) any {
		name, ok := args[0].(string)
		if !ok {
			return fmt.Errorf("param: name must be a string")
		}
		list, ok := v.([]any)
		if !ok {
			return fmt.Errorf("param: expected an array of parameters")
		}
		for _, item := range list {
			if m, ok := item.(map[string]any); ok && m["name"] == name {
				return m["value"]
			}
		}
		return nil
	}),
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// Apply applies a jq filter expression to the input data. A single result is
// returned as-is; several results are returned as a slice.
func Apply(data any, expression string) (any, error) {
	if expression == "" {
		return data, nil
	}

	expression = NormalizeExpression(expression)
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	code, err := gojq.Compile(query, compileOptions...)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}

	results, err := run(code, data)
	if err != nil {
		if items, ok := itemsFallback(data, expression, err); ok {
			if retry, retryErr := run(code, items); retryErr == nil {
				results, err = retry, nil
			}
		}
	}
	if err != nil {
		return nil, err
	}

	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

func run(code *gojq.Code, data any) ([]any, error) {
	iter := code.Run(data)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("filter error: %w", err)
		}
		results = append(results, v)
	}
	return results, nil
}

// itemsFallback retries root-array queries such as ".[]" against the items
// list of a wrapped {"items": [...]} document.
func itemsFallback(data any, expression string, runErr error) (any, bool) {
	if !looksLikeRootArrayQuery(expression) {
		return nil, false
	}
	if !strings.Contains(runErr.Error(), "expected an object but got: array") &&
		!strings.Contains(runErr.Error(), "cannot iterate over") {
		return nil, false
	}
	m, ok := data.(map[string]any)
	if !ok {
		return nil, false
	}
	items, ok := m["items"].([]any)
	return items, ok
}

func looksLikeRootArrayQuery(expression string) bool {
	expr := strings.TrimSpace(expression)
	return strings.HasPrefix(expr, ".[") || strings.HasPrefix(expr, "[.[]") || strings.HasPrefix(expr, "(.[]")
}

// ApplyFromJSON applies a jq filter to JSON bytes and returns the result as a Go value.
func ApplyFromJSON(jsonData []byte, expression string) (any, error) {
	var data any
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return Apply(data, expression)
}

// ApplyToJSON applies a filter to JSON bytes and returns pretty-printed JSON.
func ApplyToJSON(jsonData []byte, expression string) ([]byte, error) {
	if expression == "" {
		return jsonData, nil
	}
	result, err := ApplyFromJSON(jsonData, expression)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(result, "", "  ")
}
