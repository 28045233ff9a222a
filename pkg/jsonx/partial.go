package jsonx

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Assembler accumulates streamed text and extracts the JSON assembled so far.
// The zero value is ready to use and accepts any root value.
type Assembler struct {
	// Shape restricts the root value Extract looks for.
	Shape Shape
	buf   strings.Builder
}

// Write appends a delta to the buffer.
func (a *Assembler) Write(delta string) {
	a.buf.WriteString(delta)
}

// Buffer returns the raw text accumulated so far.
func (a *Assembler) Buffer() string {
	return a.buf.String()
}

// Reset clears the buffer, it is used when a new attempt starts.
func (a *Assembler) Reset() {
	a.buf.Reset()
}

// Extract returns the longest closed JSON prefix of the buffer and whether the root
// value was already complete in the raw text.
func (a *Assembler) Extract() (string, bool) {
	return ExtractPartialShape(a.buf.String(), a.Shape)
}

// ExtractPartial returns the longest syntactically closed JSON prefix found in text,
// completed with the brackets that are still open. Leading prose and markdown fences
// are skipped. A buffer that ends mid-string, mid-key, mid-number or after a dangling
// separator is trimmed back to the last closed value. The boolean reports whether the
// root value was complete without synthetic closers.
//
// Empty or whitespace-only text, or text without an opening bracket, yields "".
func ExtractPartial(text string) (string, bool) {
	return ExtractPartialShape(text, AnyShape)
}

// ExtractPartialShape is ExtractPartial restricted to root values of the given shape.
func ExtractPartialShape(text string, shape Shape) (string, bool) {
	start := jsonStart(text, shape.openers())
	if start < 0 {
		return "", false
	}

	var sc partialScanner
	out, complete := sc.scan(text[start:])
	if out == "" || !gjson.Valid(out) {
		return "", false
	}
	return out, complete
}

// jsonStart finds the first of openers, looking inside a markdown fence first when the
// text has one.
func jsonStart(text, openers string) int {
	offset := 0
	if fence := strings.Index(text, "```"); fence >= 0 {
		rest := text[fence+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			offset = fence + 3 + nl + 1
		} else {
			offset = fence + 3
		}
	}
	if idx := strings.IndexAny(text[offset:], openers); idx >= 0 {
		return offset + idx
	}
	if offset > 0 {
		// the fence may only be an inline mention, fall back to the whole text
		return strings.IndexAny(text, openers)
	}
	return -1
}

type scanState uint8

const (
	stateKeyOrEnd   scanState = iota // object just opened
	stateKey                         // object after a comma
	stateColon                       // object after a key
	stateValueOrEnd                  // array just opened
	stateValue                       // after a colon or an array comma
	stateAfter                       // after a complete value
)

type scanFrame struct {
	kind  byte
	state scanState
}

type partialScanner struct {
	stack     []scanFrame
	safe      int
	safeClose string
}

func (p *partialScanner) top() *scanFrame {
	return &p.stack[len(p.stack)-1]
}

func (p *partialScanner) markSafe(pos int) {
	p.safe = pos
	var b strings.Builder
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].kind == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	p.safeClose = b.String()
}

func (p *partialScanner) push(kind byte) {
	st := stateKeyOrEnd
	if kind == '[' {
		st = stateValueOrEnd
	}
	p.stack = append(p.stack, scanFrame{kind: kind, state: st})
}

func (p *partialScanner) valueDone(pos int) {
	p.top().state = stateAfter
	p.markSafe(pos)
}

func (p *partialScanner) result(s string) (string, bool) {
	if p.safe <= 0 {
		return "", false
	}
	return s[:p.safe] + p.safeClose, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func expectsValue(st scanState) bool {
	return st == stateValue || st == stateValueOrEnd
}

// scan walks s, which starts with '{' or '['.
func (p *partialScanner) scan(s string) (string, bool) {
	p.push(s[0])
	p.markSafe(1)

	var (
		inString    bool
		escaped     bool
		stringIsKey bool
		inScalar    bool
		scalarStart int
	)

	for i := 1; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				if stringIsKey {
					p.top().state = stateColon
				} else {
					p.valueDone(i + 1)
				}
			}
			continue
		}

		if inScalar {
			if !isSpace(c) && c != ',' && c != '}' && c != ']' {
				continue
			}
			inScalar = false
			if !gjson.Valid(s[scalarStart:i]) {
				return p.result(s)
			}
			p.valueDone(i)
		}

		if isSpace(c) {
			continue
		}

		top := p.top()
		switch c {
		case '{', '[':
			if !expectsValue(top.state) {
				return p.result(s)
			}
			top.state = stateAfter
			p.push(c)
			p.markSafe(i + 1)
		case '}', ']':
			want := byte('{')
			if c == ']' {
				want = '['
			}
			if top.kind != want {
				return p.result(s)
			}
			if top.state != stateAfter && top.state != stateKeyOrEnd && top.state != stateValueOrEnd {
				return p.result(s)
			}
			p.stack = p.stack[:len(p.stack)-1]
			if len(p.stack) == 0 {
				return s[:i+1], true
			}
			p.valueDone(i + 1)
		case ',':
			if top.state != stateAfter {
				return p.result(s)
			}
			if top.kind == '{' {
				top.state = stateKey
			} else {
				top.state = stateValue
			}
		case ':':
			if top.state != stateColon {
				return p.result(s)
			}
			top.state = stateValue
		case '"':
			switch {
			case top.state == stateKeyOrEnd || top.state == stateKey:
				stringIsKey = true
			case expectsValue(top.state):
				stringIsKey = false
			default:
				return p.result(s)
			}
			inString = true
		default:
			if !expectsValue(top.state) || !(c == '-' || (c >= '0' && c <= '9') || c == 't' || c == 'f' || c == 'n') {
				return p.result(s)
			}
			inScalar = true
			scalarStart = i
		}
	}

	// a literal at the very end cannot grow any further, a number can
	if inScalar {
		switch s[scalarStart:] {
		case "true", "false", "null":
			p.valueDone(len(s))
		}
	}
	return p.result(s)
}
