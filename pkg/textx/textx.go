// Package textx normalizes text extracted from résumé files before it
// is stored or fed to a model.
package textx

import "strings"

// zeroWidth runes show up in DOCX runs and survive extraction.
func zeroWidth(r rune) bool {
	switch r {
	case '\uFEFF', '\u200B', '\u200C', '\u200D':
		return true
	}
	return false
}

// SanitizeText strips control characters except tab, newline and
// carriage return, drops zero-width runes, and trims surrounding
// whitespace.
func SanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case zeroWidth(r):
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(r)
		case r >= 32 && r != 127:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// NormalizeNewlines rewrites CRLF and bare CR to LF and collapses runs
// of three or more newlines to a paragraph break, so downstream
// chunking sees consistent boundaries.
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}
