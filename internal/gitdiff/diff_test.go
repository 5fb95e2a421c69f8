package gitdiff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeUnifiedDiffBasic(t *testing.T) {
	old := "one\ntwo\nthree\n"
	new := "one\ntwo-modified\nthree\nfour\n"

	lines := ComputeUnifiedDiff(old, new)

	var added, removed, unchanged int
	for _, l := range lines {
		switch l.Type {
		case LineAdded:
			added++
		case LineRemoved:
			removed++
		case LineUnchanged:
			unchanged++
		}
	}
	assert.Equal(t, 2, added)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, unchanged)
}

func TestAddCollapsibleSectionsCollapsesLongRuns(t *testing.T) {
	var lines []DiffLine
	for i := 1; i <= 20; i++ {
		lines = append(lines, DiffLine{Type: LineUnchanged, Content: "line", OldLineNumber: i, NewLineNumber: i})
	}
	lines = append(lines, DiffLine{Type: LineAdded, Content: "new line", NewLineNumber: 21})

	out := AddCollapsibleSections(lines)

	var collapsibleCount int
	for _, l := range out {
		if l.IsCollapsible {
			collapsibleCount++
			assert.Equal(t, 20-2*contextLines, l.CollapsedCount)
		}
	}
	assert.Equal(t, 1, collapsibleCount)
}

func TestAddCollapsibleSectionsLeavesShortRunsAlone(t *testing.T) {
	var lines []DiffLine
	for i := 1; i <= 5; i++ {
		lines = append(lines, DiffLine{Type: LineUnchanged, Content: "line", OldLineNumber: i, NewLineNumber: i})
	}
	out := AddCollapsibleSections(lines)
	require.Len(t, out, 5)
	for _, l := range out {
		assert.False(t, l.IsCollapsible)
	}
}

func TestComputeSplitDiff(t *testing.T) {
	old := "a\nb\nc\n"
	new := "a\nx\nc\n"

	split := ComputeSplitDiff(old, new)
	require.Equal(t, len(split.LeftLines), len(split.RightLines))

	stats := CalculateSplitStats(split)
	assert.Equal(t, 1, stats.Additions)
	assert.Equal(t, 1, stats.Deletions)
}

func TestCalculateStatsRecursesIntoCollapsedSections(t *testing.T) {
	lines := []DiffLine{
		{Type: LineAdded},
		{Type: LineUnchanged, CollapsedLines: []DiffLine{{Type: LineRemoved}, {Type: LineAdded}}},
	}
	stats := CalculateStats(lines)
	assert.Equal(t, 2, stats.Additions)
	assert.Equal(t, 1, stats.Deletions)
}

func TestFileLanguage(t *testing.T) {
	cases := map[string]string{
		"main.go":     "go",
		"app.tsx":     "typescript",
		"script.py":   "python",
		"README.md":   "markdown",
		"noext":       "",
		"":            "",
		"a.b.unknown": "",
	}
	for path, want := range cases {
		assert.Equal(t, want, FileLanguage(path), path)
	}
}

func TestComputeUnifiedDiffEmptyInputs(t *testing.T) {
	lines := ComputeUnifiedDiff("", "")
	assert.Empty(t, lines)
}

func TestComputeUnifiedDiffNoTrailingNewline(t *testing.T) {
	old := "a\nb"
	new := "a\nb\nc"
	lines := ComputeUnifiedDiff(old, new)
	joined := strings.Builder{}
	for _, l := range lines {
		if l.Type == LineAdded {
			joined.WriteString(l.Content)
		}
	}
	assert.Equal(t, "c", joined.String())
}
