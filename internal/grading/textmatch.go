package grading

import (
	"strings"
	"unicode"
)

// normalizeToken casefolds, strips punctuation and collapses whitespace, so
// choice tokens like " B) " and "b" compare equal.
func normalizeToken(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range stripMarkup(s) {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r):
			// skip
		default:
			if space && len(out) > 0 {
				out = append(out, ' ')
			}
			space = false
			out = append(out, unicode.ToLower(r))
		}
	}
	return string(out)
}

// stripMarkup drops anything between angle brackets. Question banks often
// carry answer tokens wrapped in markup spans; the content is what matters.
func stripMarkup(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	depth := 0
	for _, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// normalizeSet maps a selection to its normalized, de-duplicated form.
func normalizeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if t := normalizeToken(v); t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}
