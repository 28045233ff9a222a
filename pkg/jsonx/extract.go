package jsonx

import (
	"errors"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoJSON is returned when a complete response holds no extractable JSON value.
var ErrNoJSON = errors.New("no JSON found in response")

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// Shape restricts the root value extraction looks for.
type Shape uint8

const (
	// AnyShape accepts any JSON value.
	AnyShape Shape = iota
	// ObjectShape only accepts objects, brackets in surrounding prose are skipped.
	ObjectShape
	// ArrayShape only accepts arrays.
	ArrayShape
)

func (s Shape) String() string {
	switch s {
	case ObjectShape:
		return "object"
	case ArrayShape:
		return "array"
	default:
		return "any"
	}
}

// openers returns the brackets a root value of this shape can start with.
func (s Shape) openers() string {
	switch s {
	case ObjectShape:
		return "{"
	case ArrayShape:
		return "["
	default:
		return "{["
	}
}

func (s Shape) accepts(doc string) bool {
	switch s {
	case ObjectShape:
		return strings.HasPrefix(doc, "{")
	case ArrayShape:
		return strings.HasPrefix(doc, "[")
	default:
		return true
	}
}

// Extract finds a complete JSON document in a full model response. It tries, in order,
// the whole text, every fenced code block, and the first balanced object or array.
// Bare scalars are only accepted when they are the whole text.
func Extract(text string) (string, error) {
	return ExtractShape(text, AnyShape)
}

// ExtractShape is Extract restricted to root values of the given shape. A bracketed
// citation such as "[1]" ahead of the answer is skipped when an object is expected.
func ExtractShape(text string, shape Shape) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrNoJSON
	}

	if isContainer(trimmed) && shape.accepts(trimmed) && gjson.Valid(trimmed) {
		return trimmed, nil
	}

	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		candidate := strings.TrimSpace(m[1])
		if candidate != "" && shape.accepts(candidate) && gjson.Valid(candidate) {
			return candidate, nil
		}
	}

	if candidate, ok := firstBalanced(text, shape.openers()); ok {
		return candidate, nil
	}

	if shape == AnyShape && gjson.Valid(trimmed) {
		return trimmed, nil
	}
	return "", ErrNoJSON
}

func isContainer(s string) bool {
	return s != "" && (s[0] == '{' || s[0] == '[')
}

// firstBalanced returns the first bracket-balanced region that opens with one of openers
// and is valid JSON.
func firstBalanced(text, openers string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if strings.IndexByte(openers, text[start]) < 0 {
			continue
		}
		end := matchBracket(text, start)
		if end < 0 {
			continue
		}
		if candidate := text[start : end+1]; gjson.Valid(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// matchBracket returns the index of the bracket closing the one at start, or -1.
func matchBracket(text string, start int) int {
	var (
		depth    int
		inString bool
		escaped  bool
	)
	for i := start; i < len(text); i++ {
		c := text[i]
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
