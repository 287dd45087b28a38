package chunk

import "strings"

// CleanText normalizes extracted text: line endings become \n, runs of
// spaces and tabs collapse to one space, lines are trimmed, and more than
// one blank line collapses into a single paragraph break. Page breaks are
// kept.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))
	blank := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.FieldsFunc(line, isInlineSpace), " ")
		if line == "" {
			blank++
			continue
		}
		if b.Len() > 0 {
			if blank > 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		blank = 0
		b.WriteString(line)
	}
	return b.String()
}

func isInlineSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\v', '\u00a0':
		return true
	}
	return false
}
