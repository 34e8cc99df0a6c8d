// Package render splits answer text into prose and code segments and renders
// them for the web page and the terminal.
package render

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// DefaultHint labels every code segment unless fence languages are honored.
const DefaultHint = "text"

// Kind classifies a segment.
type Kind int

const (
	KindProse Kind = iota
	KindCode
)

func (k Kind) String() string {
	switch k {
	case KindProse:
		return "prose"
	case KindCode:
		return "code"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText encodes the kind as "prose" or "code" in JSON payloads.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "prose":
		*k = KindProse
	case "code":
		*k = KindCode
	default:
		return fmt.Errorf("render: unknown segment kind %q", text)
	}
	return nil
}

// Segment is one contiguous span of answer text.
type Segment struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
	Hint string `json:"hint,omitempty"`
}

// IsBlank reports whether the segment has no visible text.
func (s Segment) IsBlank() bool {
	return strings.TrimSpace(s.Text) == ""
}

// Prose builds a trimmed prose segment.
func Prose(text string) Segment {
	return Segment{Kind: KindProse, Text: strings.TrimSpace(text)}
}

// Code builds a trimmed code segment.
func Code(text, hint string) Segment {
	return Segment{Kind: KindCode, Text: strings.TrimSpace(text), Hint: hint}
}

// delimiter is one pair of code block markers. Earlier entries in blockDelimiters
// take priority when two blocks would open at the same offset.
type delimiter struct {
	open   string
	close  string
	decode func(string) string
	fence  bool
}

var blockDelimiters = []delimiter{
	{open: "<pre><code>", close: "</code></pre>", decode: html.UnescapeString},
	{open: "```", close: "```", fence: true},
}

// Lexer scans answer text for code blocks. The zero value labels every code
// block with DefaultHint.
type Lexer struct {
	// FenceLanguage uses a fence info string (```go) as the hint and strips it
	// from the code text.
	FenceLanguage bool
}

// Split runs the zero-value Lexer over text.
func Split(text string) []Segment {
	return Lexer{}.Split(text)
}

// Split returns the prose and code segments of text in input order. Text
// between blocks, including before the first and after the last, is always
// emitted as prose even when it trims to empty. An opening marker without a
// closing marker is left in the surrounding prose.
func (l Lexer) Split(text string) []Segment {
	var segments []Segment
	proseStart, pos := 0, 0
	for pos < len(text) {
		d, openAt, closeAt, ok := nextBlock(text, pos)
		if !ok {
			break
		}
		segments = append(segments, Prose(text[proseStart:openAt]))
		segments = append(segments, l.code(d, text[openAt+len(d.open):closeAt]))
		pos = closeAt + len(d.close)
		proseStart = pos
	}
	return append(segments, Prose(text[proseStart:]))
}

func (l Lexer) code(d delimiter, body string) Segment {
	if d.decode != nil {
		body = d.decode(body)
	}
	hint := DefaultHint
	if d.fence && l.FenceLanguage {
		if lang, rest, ok := cutInfoString(body); ok {
			hint, body = lang, rest
		}
	}
	return Code(body, hint)
}

// nextBlock finds the leftmost complete block starting at or after pos.
func nextBlock(text string, pos int) (delimiter, int, int, bool) {
	var (
		best             delimiter
		bestOpen, bestAt = -1, -1
	)
	for _, d := range blockDelimiters {
		open := strings.Index(text[pos:], d.open)
		if open < 0 {
			continue
		}
		open += pos
		// No closing marker after the first opening one means none of the
		// later openings can close either.
		end := strings.Index(text[open+len(d.open):], d.close)
		if end < 0 {
			continue
		}
		if bestOpen < 0 || open < bestOpen {
			best, bestOpen, bestAt = d, open, open+len(d.open)+end
		}
	}
	if bestOpen < 0 {
		return delimiter{}, 0, 0, false
	}
	return best, bestOpen, bestAt, true
}

// cutInfoString splits "python\nprint(1)" into ("python", "print(1)").
func cutInfoString(body string) (string, string, bool) {
	first, rest, found := strings.Cut(body, "\n")
	if !found {
		return "", body, false
	}
	lang := strings.TrimSpace(first)
	if lang == "" || !isLanguageTag(lang) {
		return "", body, false
	}
	return strings.ToLower(lang), rest, true
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '+', r == '#', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
