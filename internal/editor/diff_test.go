package editor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffPreview(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		before, after string
		want          string
	}{
		{"identical", "a\nb", "a\nb", "--- before\n+++ after\n"},
		{"changed line", "a\nb\nc", "a\nB\nc", "--- before\n+++ after\n- b\n+ B\n"},
		{"appended line", "a", "a\nb", "--- before\n+++ after\n- \n+ b\n"},
		{"new file", "", "x", "--- before\n+++ after\n- \n+ x\n"},
		{"inserted line shifts the rest", "a\nc", "a\nb\nc", "--- before\n+++ after\n- c\n+ b\n- \n+ c\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DiffPreview(tt.before, tt.after, 0))
		})
	}
}

func TestDiffPreview_ComparesBoundedLines(t *testing.T) {
	t.Parallel()

	before := strings.Repeat("x\n", DiffMaxLines) + "tail"
	after := strings.Repeat("x\n", DiffMaxLines) + "TAIL"
	assert.Equal(t, diffHeader, DiffPreview(before, after, 1<<20))
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "héllo", truncateRunes("héllo", 5))
	assert.Equal(t, "hé"+DiffTruncationMarker, truncateRunes("héllo", 2))
}
