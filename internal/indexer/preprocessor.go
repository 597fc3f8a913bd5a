package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes extracted text before chunking: unified line endings, no control characters,
// single spaces within lines, at most one blank line between paragraphs.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	newlines := 0
	for _, r := range text {
		switch {
		case r == '\n':
			pendingSpace = false
			newlines++
			continue
		case unicode.IsSpace(r):
			pendingSpace = true
			continue
		case unicode.IsControl(r) || r == '\uFFFD':
			continue
		}
		if newlines > 0 {
			if b.Len() > 0 {
				if newlines > 2 {
					newlines = 2
				}
				b.WriteString(strings.Repeat("\n", newlines))
			}
			newlines = 0
		} else if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
