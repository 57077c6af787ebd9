package llm

import (
	"errors"
	"regexp"
	"strings"
)

// ParseOptions configures response parsing behavior.
type ParseOptions struct {
	Format     ResponseFormat
	StrictMode bool // If true, return error when format not found
}

var (
	ErrEmptyResponse = errors.New("empty response")
	ErrNoCodeFound   = errors.New("no code block found in response")
)

// fencePattern matches a ```lang ... ``` block. The language line is optional.
var fencePattern = regexp.MustCompile("(?s)```[^\\n`]*\\n(.*?)```")

// ParseResponse extracts structured content from LLM responses.
// Handles cases where the model wraps its answer in prose or markdown.
func ParseResponse(response string, opts ParseOptions) (string, error) {
	if strings.TrimSpace(response) == "" {
		return "", ErrEmptyResponse
	}

	switch opts.Format {
	case Code:
		return extractCode(response, opts.StrictMode)
	default:
		return response, nil
	}
}

// extractCode returns the body of the first fenced block. Without a fence
// the trimmed response is taken as code unless strict is set.
func extractCode(response string, strict bool) (string, error) {
	if m := fencePattern.FindStringSubmatch(response); len(m) > 1 {
		return strings.TrimSpace(m[1]), nil
	}

	// An unterminated fence: drop the opening line.
	trimmed := strings.TrimSpace(response)
	if strings.HasPrefix(trimmed, "```") {
		if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
			return strings.TrimSpace(strings.TrimSuffix(trimmed[i+1:], "```")), nil
		}
		return "", ErrNoCodeFound
	}

	if strict {
		return "", ErrNoCodeFound
	}
	return trimmed, nil
}
