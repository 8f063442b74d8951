// Package reflow normalizes the paragraph and list spacing of generated text
// without changing its words.
package reflow

import (
	"regexp"
	"strings"
)

type lineKind int

const (
	kindEmpty lineKind = iota
	kindText
	kindList
	kindHeader
)

var (
	listItemPattern = regexp.MustCompile(`^\s*(?:[-*+•]|\d+[.)])\s+\S`)
	headerPattern   = regexp.MustCompile(`^\*\*[^*]+\*\*:?$`)
)

type line struct {
	text string
	kind lineKind
}

// Reflow returns text with one blank line between paragraphs, around headers and
// around lists, single newlines between list items, no runs of blank lines and
// no blank lines at either end. Reflow(Reflow(s)) == Reflow(s) for every s.
func Reflow(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []line
	prev := kindEmpty
	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimRight(raw, " \t")
		kind := classify(raw, prev)
		if kind == kindEmpty {
			continue
		}
		lines = append(lines, line{text: raw, kind: kind})
		prev = kind
	}

	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			if l.kind == kindList && lines[i-1].kind == kindList {
				b.WriteString("\n")
			} else {
				b.WriteString("\n\n")
			}
		}
		b.WriteString(l.text)
	}
	return b.String()
}

// classify decides what a line is. prev is the kind of the previous non-empty
// line; an indented line directly under a list item continues that item.
func classify(s string, prev lineKind) lineKind {
	trimmed := strings.TrimSpace(s)
	switch {
	case trimmed == "":
		return kindEmpty
	case listItemPattern.MatchString(s):
		return kindList
	case headerPattern.MatchString(trimmed):
		return kindHeader
	case prev == kindList && (s[0] == ' ' || s[0] == '\t'):
		return kindList
	default:
		return kindText
	}
}
