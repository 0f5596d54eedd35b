package fileutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ErrTruncatedJSON reports model output that opens a JSON object it never closes, usually
// because the reply hit the output token limit.
var ErrTruncatedJSON = errors.New("model output appears truncated (incomplete JSON object)")

var reasoningBlock = regexp.MustCompile(`(?s)<(think|thinking|reasoning)>.*?</(think|thinking|reasoning)>`)

// DecodeModelJSON unmarshals JSON from a model response, with a small amount of robustness
// for replies wrapped in code fences, reasoning tags or surrounding prose.
func DecodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}

	// Fast path: valid JSON as-is.
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	sub, err := ExtractJSONObject(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(sub), v); err != nil {
		return fmt.Errorf("failed to unmarshal extracted JSON (len=%d): %w", len(sub), err)
	}
	return nil
}

// ExtractJSONObject returns the first balanced top-level JSON object in s. When none parses
// it falls back to the span from the first '{' to the last '}'.
func ExtractJSONObject(s string) (string, error) {
	s = stripFences(strings.TrimSpace(s))
	s = strings.TrimSpace(reasoningBlock.ReplaceAllString(s, ""))

	if start, end := balancedObject(s); start >= 0 {
		candidate := s[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		candidate := s[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	if strings.HasPrefix(s, "{") && !strings.HasSuffix(s, "}") && strings.Count(s, "{") > strings.Count(s, "}") {
		return "", fmt.Errorf("%w: %s", ErrTruncatedJSON, Truncate(s, 200))
	}
	return "", fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl > 0 {
		s = strings.TrimLeft(s[nl:], " \t\r\n")
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimRight(s[:len(s)-3], " \t\r\n")
	}
	return s
}

// balancedObject scans for the first top-level {...} pair, skipping braces inside strings.
func balancedObject(s string) (int, int) {
	start, depth := -1, 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return start, i
				}
			}
		}
	}
	return -1, -1
}
