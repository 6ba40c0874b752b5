package validate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// container states
const (
	objKeyOrEnd = iota // just after '{'
	objKey             // after ',' in an object
	objColon           // after a key
	objValue           // after ':'
	objCommaOrEnd      // after a member value
	arrValueOrEnd      // just after '['
	arrValue           // after ',' in an array
	arrCommaOrEnd      // after an element
)

type container struct {
	kind  byte
	state int
}

// scanResult describes how far a JSON document got before input ended.
type scanResult struct {
	// complete is true when the top-level value closed; end is the offset
	// just past it. Anything after end is ignored.
	complete bool
	end      int

	// repaired is the closed form of a truncated document. It is only set
	// when input ended inside an open structure.
	repaired string

	// syntaxErr is set when the text is malformed before its end, which no
	// amount of closing can fix. errPos is the offending offset.
	syntaxErr error
	errPos    int
}

// scanner walks a document once, tracking the open containers and the
// longest prefix that can be closed without inventing content.
type scanner struct {
	src   string
	stack []container

	inString  bool
	isKey     bool
	escape    bool
	stringPos int

	safeLen   int
	safeStack []byte
}

func scan(src string) scanResult {
	s := &scanner{src: src}
	return s.run()
}

func (s *scanner) expectingValue() bool {
	if len(s.stack) == 0 {
		return true
	}
	switch s.top().state {
	case objValue, arrValueOrEnd, arrValue:
		return true
	}
	return false
}

func (s *scanner) top() *container {
	return &s.stack[len(s.stack)-1]
}

// markSafe records pos as a point where appending closers yields valid JSON.
func (s *scanner) markSafe(pos int) {
	s.safeLen = pos
	s.safeStack = s.safeStack[:0]
	for _, c := range s.stack {
		s.safeStack = append(s.safeStack, c.kind)
	}
}

// valueDone advances the enclosing container after a complete value ending at pos.
// It reports true when the top-level value itself just closed.
func (s *scanner) valueDone(pos int) bool {
	if len(s.stack) == 0 {
		return true
	}
	c := s.top()
	if c.kind == '{' {
		c.state = objCommaOrEnd
	} else {
		c.state = arrCommaOrEnd
	}
	s.markSafe(pos)
	return false
}

func (s *scanner) syntaxError(pos int, msg string) scanResult {
	return scanResult{syntaxErr: fmt.Errorf("offset %d: %s", pos, msg), errPos: pos}
}

func (s *scanner) run() scanResult {
	src := s.src
	for i := 0; i < len(src); i++ {
		c := src[i]

		if s.inString {
			switch {
			case s.escape:
				s.escape = false
			case c == '\\':
				s.escape = true
			case c == '"':
				s.inString = false
				if s.isKey {
					s.top().state = objColon
				} else if s.valueDone(i + 1) {
					return scanResult{complete: true, end: i + 1}
				}
			}
			continue
		}

		switch c {
		case ' ', '\t', '\n', '\r':
			continue

		case '{', '[':
			if !s.expectingValue() {
				return s.syntaxError(i, "unexpected "+string(c))
			}
			state := objKeyOrEnd
			if c == '[' {
				state = arrValueOrEnd
			}
			s.stack = append(s.stack, container{kind: c, state: state})
			s.markSafe(i + 1)

		case '}', ']':
			if len(s.stack) == 0 {
				return s.syntaxError(i, "unbalanced "+string(c))
			}
			top := s.top()
			switch {
			case c == '}' && top.kind == '{' && (top.state == objKeyOrEnd || top.state == objCommaOrEnd):
			case c == ']' && top.kind == '[' && (top.state == arrValueOrEnd || top.state == arrCommaOrEnd):
			default:
				return s.syntaxError(i, "unexpected "+string(c))
			}
			s.stack = s.stack[:len(s.stack)-1]
			if s.valueDone(i + 1) {
				return scanResult{complete: true, end: i + 1}
			}

		case ',':
			if len(s.stack) == 0 {
				return s.syntaxError(i, "unexpected ,")
			}
			top := s.top()
			switch {
			case top.kind == '{' && top.state == objCommaOrEnd:
				top.state = objKey
			case top.kind == '[' && top.state == arrCommaOrEnd:
				top.state = arrValue
			default:
				return s.syntaxError(i, "unexpected ,")
			}

		case ':':
			if len(s.stack) == 0 || s.top().kind != '{' || s.top().state != objColon {
				return s.syntaxError(i, "unexpected :")
			}
			s.top().state = objValue

		case '"':
			switch {
			case len(s.stack) > 0 && s.top().kind == '{' && (s.top().state == objKeyOrEnd || s.top().state == objKey):
				s.isKey = true
			case s.expectingValue():
				s.isKey = false
			default:
				return s.syntaxError(i, "unexpected string")
			}
			s.inString = true
			s.stringPos = i

		default:
			if !s.expectingValue() {
				return s.syntaxError(i, fmt.Sprintf("unexpected %q", c))
			}
			j := i
			for j < len(src) && !isDelimiter(src[j]) {
				j++
			}
			if j == len(src) {
				// A number or literal running into end of input may itself be
				// cut short, so it is never treated as complete.
				return s.truncated()
			}
			if !json.Valid([]byte(src[i:j])) {
				return s.syntaxError(i, fmt.Sprintf("invalid literal %q", src[i:j]))
			}
			if s.valueDone(j) {
				return scanResult{complete: true, end: j}
			}
			i = j - 1
		}
	}

	if len(s.stack) == 0 && !s.inString {
		return s.syntaxError(len(src), "no JSON value")
	}
	return s.truncated()
}

// truncated builds the closed form of the input seen so far.
func (s *scanner) truncated() scanResult {
	if s.inString && !s.isKey {
		prefix := trimHighSurrogate(trimPartialEscape(trimPartialRune(s.src)))
		kinds := make([]byte, 0, len(s.stack))
		for _, c := range s.stack {
			kinds = append(kinds, c.kind)
		}
		return scanResult{repaired: prefix + `"` + closers(kinds)}
	}

	if s.safeLen == 0 {
		return scanResult{}
	}
	return scanResult{repaired: s.src[:s.safeLen] + closers(s.safeStack)}
}

func closers(kinds []byte) string {
	var b strings.Builder
	for i := len(kinds) - 1; i >= 0; i-- {
		if kinds[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', ',', '}', ']', ':', '"':
		return true
	}
	return false
}

// trimPartialRune drops a UTF-8 sequence cut off at the end of s.
func trimPartialRune(s string) string {
	for n := 0; n < utf8.UTFMax && len(s) > 0; n++ {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size != 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

// trimPartialEscape drops a backslash escape left incomplete at the end of
// an unterminated string, such as a lone `\` or `\u00`.
func trimPartialEscape(s string) string {
	// count trailing backslashes; an odd run means the last one is unpaired
	n := 0
	for n < len(s) && s[len(s)-1-n] == '\\' {
		n++
	}
	if n%2 == 1 {
		return s[:len(s)-1]
	}

	idx := strings.LastIndex(s, `\u`)
	if idx < 0 || len(s)-idx >= 6 {
		return s
	}
	// the \u must itself be unescaped
	k := 0
	for idx-1-k >= 0 && s[idx-1-k] == '\\' {
		k++
	}
	if k%2 == 1 {
		return s
	}
	return s[:idx]
}

// trimHighSurrogate drops a trailing `\uD800`-`\uDBFF` escape whose low half
// was cut off. Left in place it would decode as U+FFFD.
func trimHighSurrogate(s string) string {
	if len(s) < 6 {
		return s
	}
	tail := s[len(s)-6:]
	if tail[0] != '\\' || tail[1] != 'u' {
		return s
	}
	// the backslash must start an escape rather than end one
	k := 0
	for i := len(s) - 7; i >= 0 && s[i] == '\\'; i-- {
		k++
	}
	if k%2 == 1 {
		return s
	}
	v, err := strconv.ParseUint(tail[2:], 16, 16)
	if err != nil {
		return s
	}
	if v >= 0xD800 && v <= 0xDBFF {
		return s[:len(s)-6]
	}
	return s
}
