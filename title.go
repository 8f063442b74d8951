package pmcopilot

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxTitleLength = 50
	DefaultTitle   = "New conversation"
)

var leadingWords = map[string]bool{
	"what": true, "which": true, "who": true, "whom": true, "whose": true,
	"when": true, "where": true, "why": true, "how": true,
	"is": true, "are": true, "was": true, "were": true,
	"do": true, "does": true, "did": true,
	"can": true, "could": true, "will": true, "would": true, "should": true, "shall": true,
	"may": true, "might": true, "has": true, "have": true, "had": true,
}

// Title derives a conversation title from its opening message.
func Title(message string) string {
	fields := strings.Fields(message)
	if len(fields) > 1 && leadingWords[strings.ToLower(fields[0])] {
		fields = fields[1:]
	}
	title := strings.Join(fields, " ")

	if utf8.RuneCountInString(title) > MaxTitleLength {
		runes := []rune(title)
		title = strings.TrimRight(string(runes[:MaxTitleLength-3]), " ") + "..."
	}
	if title == "" {
		return DefaultTitle
	}

	first, size := utf8.DecodeRuneInString(title)
	return string(unicode.ToUpper(first)) + title[size:]
}
