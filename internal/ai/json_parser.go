// Package ai provides optional AI enrichment for realignment
// suggestions. The rest of the system never depends on it succeeding.
package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled patterns; compiling per parse is far slower.
var (
	codeFenceAnyRegex = regexp.MustCompile("(?s)`{3}(?:json)?\\s*\n?([\\s\\S]*?)\n?`{3}")

	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)

	// Greedy, to capture nested structures
	objectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex  = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// ParseResult is the outcome of one JSON parse attempt
type ParseResult[T any] struct {
	Success bool
	Data    T
	Error   string
}

// Parse extracts JSON from model output, tolerating the usual LLM
// formatting quirks.
//
// Strategy sequence:
//  1. Direct JSON parse
//  2. Strip code fences and retry
//  3. Remove trailing commas and retry
//  4. Extract the first JSON object or array from mixed prose and retry
func Parse[T any](text string) ParseResult[T] {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParseResult[T]{Error: "empty input"}
	}

	if data, err := tryParse[T](trimmed); err == nil {
		return ParseResult[T]{Success: true, Data: data}
	}

	if m := codeFenceAnyRegex.FindStringSubmatch(trimmed); m != nil {
		if data, err := tryParse[T](strings.TrimSpace(m[1])); err == nil {
			return ParseResult[T]{Success: true, Data: data}
		}
	}

	cleaned := trailingCommaRegex.ReplaceAllString(trimmed, "$1")
	if data, err := tryParse[T](cleaned); err == nil {
		return ParseResult[T]{Success: true, Data: data}
	}

	if extracted := extractJSON(cleaned); extracted != "" {
		if data, err := tryParse[T](extracted); err == nil {
			return ParseResult[T]{Success: true, Data: data}
		}
	}

	return ParseResult[T]{Error: fmt.Sprintf("no parseable JSON found in %d bytes of output", len(text))}
}

func tryParse[T any](text string) (T, error) {
	var data T
	err := json.Unmarshal([]byte(text), &data)
	return data, err
}

// extractJSON pulls the first JSON object or array out of mixed content
func extractJSON(text string) string {
	objIdx := strings.IndexByte(text, '{')
	arrIdx := strings.IndexByte(text, '[')

	if arrIdx >= 0 && (objIdx < 0 || arrIdx < objIdx) {
		if m := arrayRegex.FindString(text); m != "" {
			return m
		}
	}
	if m := objectRegex.FindString(text); m != "" {
		return m
	}
	return ""
}
