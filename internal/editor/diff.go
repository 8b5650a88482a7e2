package editor

import (
	"strings"
	"unicode/utf8"
)

// Diff preview bounds.
const (
	DefaultDiffMaxChars = 1200
	DiffMaxLines        = 2000
)

const (
	diffHeader = "--- before\n+++ after\n"
	// DiffTruncationMarker ends a preview cut at its character budget.
	DiffTruncationMarker = "\n...<truncated>"
)

// DiffPreview compares before and after line by line, by position, and
// emits each differing pair as "- old" / "+ new". At most DiffMaxLines
// positions are compared and the output is cut at maxChars runes.
func DiffPreview(before, after string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultDiffMaxChars
	}
	linesBefore := strings.Split(before, "\n")
	linesAfter := strings.Split(after, "\n")
	n := min(max(len(linesBefore), len(linesAfter)), DiffMaxLines)

	var b strings.Builder
	b.WriteString(diffHeader)
	for i := range n {
		var old, cur string
		if i < len(linesBefore) {
			old = linesBefore[i]
		}
		if i < len(linesAfter) {
			cur = linesAfter[i]
		}
		if old == cur {
			continue
		}
		b.WriteString("- ")
		b.WriteString(old)
		b.WriteString("\n+ ")
		b.WriteString(cur)
		b.WriteString("\n")
		// Stop building once the budget is certainly exceeded.
		if b.Len() > 4*maxChars+4 {
			break
		}
	}
	return truncateRunes(b.String(), maxChars)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	i, n := 0, 0
	for i < len(s) && n < limit {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		n++
	}
	return s[:i] + DiffTruncationMarker
}
