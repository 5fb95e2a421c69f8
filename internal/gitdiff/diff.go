// Package gitdiff turns two text blobs into the structured line diff the
// UI renders (unified and side-by-side), and computes fast per-session
// change statistics against a merge-base baseline.
package gitdiff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// collapseThreshold and contextLines control when a run of unchanged
// lines gets collapsed in a unified diff.
const (
	collapseThreshold = 4
	contextLines      = 3
)

// LineType is the kind of a single diff line.
type LineType string

const (
	LineAdded     LineType = "added"
	LineRemoved   LineType = "removed"
	LineUnchanged LineType = "unchanged"
)

// DiffLine is one rendered row of a diff. OldLineNumber/NewLineNumber are
// zero when not applicable to the line's type. A collapsed run carries
// IsCollapsible with the hidden lines in CollapsedLines.
type DiffLine struct {
	Content        string
	Type           LineType
	OldLineNumber  int
	NewLineNumber  int
	IsCollapsible  bool
	CollapsedCount int
	CollapsedLines []DiffLine
}

// Stats is an additions/deletions tally.
type Stats struct {
	Additions int
	Deletions int
}

// SplitResult holds the parallel left/right sequences for a side-by-side
// view.
type SplitResult struct {
	LeftLines  []DiffLine
	RightLines []DiffLine
}

func ensureTrailingNewline(content string) string {
	if content == "" {
		return ""
	}
	if strings.HasSuffix(content, "\n") {
		return content
	}
	return content + "\n"
}

// lineChange is one Equal/Delete/Insert run of whole lines, produced by
// running go-diff's Myers algorithm over line-hashed text.
type lineChange struct {
	tag   diffmatchpatch.Operation
	lines []string
}

func diffLinesMyers(oldText, newText string) []lineChange {
	dmp := diffmatchpatch.New()
	oldEnc, newEnc, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(oldEnc, newEnc, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	out := make([]lineChange, 0, len(diffs))
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if text == "" {
			continue
		}
		out = append(out, lineChange{tag: d.Type, lines: strings.Split(text, "\n")})
	}
	return out
}

// ComputeUnifiedDiff returns the flat line-by-line diff (collapsing run
// separately via AddCollapsibleSections), using Myers line diffing.
func ComputeUnifiedDiff(oldContent, newContent string) []DiffLine {
	oldText := ensureTrailingNewline(oldContent)
	newText := ensureTrailingNewline(newContent)

	changes := diffLinesMyers(oldText, newText)

	var lines []DiffLine
	oldLineNum, newLineNum := 1, 1
	for _, c := range changes {
		for _, content := range c.lines {
			switch c.tag {
			case diffmatchpatch.DiffEqual:
				lines = append(lines, DiffLine{
					Content:       content,
					Type:          LineUnchanged,
					OldLineNumber: oldLineNum,
					NewLineNumber: newLineNum,
				})
				oldLineNum++
				newLineNum++
			case diffmatchpatch.DiffDelete:
				lines = append(lines, DiffLine{
					Content:       content,
					Type:          LineRemoved,
					OldLineNumber: oldLineNum,
				})
				oldLineNum++
			case diffmatchpatch.DiffInsert:
				lines = append(lines, DiffLine{
					Content:       content,
					Type:          LineAdded,
					NewLineNumber: newLineNum,
				})
				newLineNum++
			}
		}
	}
	return lines
}

// AddCollapsibleSections collapses runs of unchanged lines longer than
// collapseThreshold + 2*contextLines, keeping contextLines of context at
// each end.
func AddCollapsibleSections(lines []DiffLine) []DiffLine {
	if len(lines) == 0 {
		return lines
	}

	out := make([]DiffLine, 0, len(lines))
	i := 0
	for i < len(lines) {
		if lines[i].Type != LineUnchanged {
			out = append(out, lines[i])
			i++
			continue
		}

		j := i
		for j < len(lines) && lines[j].Type == LineUnchanged {
			j++
		}
		unchangedCount := j - i

		if unchangedCount > collapseThreshold+2*contextLines {
			for k := 0; k < contextLines && i+k < j; k++ {
				out = append(out, lines[i+k])
			}

			collapsedStart := i + contextLines
			collapsedEnd := j - contextLines
			collapsedCount := collapsedEnd - collapsedStart

			if collapsedCount > 0 {
				collapsed := make([]DiffLine, collapsedCount)
				copy(collapsed, lines[collapsedStart:collapsedEnd])
				out = append(out, DiffLine{
					Type:           LineUnchanged,
					IsCollapsible:  true,
					CollapsedCount: collapsedCount,
					CollapsedLines: collapsed,
					OldLineNumber:  lines[collapsedStart].OldLineNumber,
					NewLineNumber:  lines[collapsedStart].NewLineNumber,
				})
			}

			out = append(out, lines[collapsedEnd:j]...)
		} else {
			out = append(out, lines[i:j]...)
		}

		i = j
	}
	return out
}

// ComputeSplitDiff returns the parallel left/right sequences for a
// side-by-side view.
func ComputeSplitDiff(oldContent, newContent string) SplitResult {
	oldText := ensureTrailingNewline(oldContent)
	newText := ensureTrailingNewline(newContent)

	changes := diffLinesMyers(oldText, newText)

	var left, right []DiffLine
	oldIdx, newIdx := 0, 0
	for _, c := range changes {
		for _, content := range c.lines {
			switch c.tag {
			case diffmatchpatch.DiffEqual:
				oldIdx++
				newIdx++
				left = append(left, DiffLine{Content: content, Type: LineUnchanged, OldLineNumber: oldIdx})
				right = append(right, DiffLine{Content: content, Type: LineUnchanged, NewLineNumber: newIdx})
			case diffmatchpatch.DiffDelete:
				oldIdx++
				left = append(left, DiffLine{Content: content, Type: LineRemoved, OldLineNumber: oldIdx})
				right = append(right, DiffLine{Type: LineUnchanged})
			case diffmatchpatch.DiffInsert:
				newIdx++
				left = append(left, DiffLine{Type: LineUnchanged})
				right = append(right, DiffLine{Content: content, Type: LineAdded, NewLineNumber: newIdx})
			}
		}
	}
	return SplitResult{LeftLines: left, RightLines: right}
}

// CalculateStats sums additions/deletions over a unified diff, recursing
// into collapsed sections.
func CalculateStats(lines []DiffLine) Stats {
	var s Stats
	for _, l := range lines {
		switch l.Type {
		case LineAdded:
			s.Additions++
		case LineRemoved:
			s.Deletions++
		case LineUnchanged:
			if l.CollapsedLines != nil {
				sub := CalculateStats(l.CollapsedLines)
				s.Additions += sub.Additions
				s.Deletions += sub.Deletions
			}
		}
	}
	return s
}

// CalculateSplitStats counts only Removed on the left and Added on the
// right of a side-by-side result.
func CalculateSplitStats(split SplitResult) Stats {
	var s Stats
	n := len(split.LeftLines)
	if len(split.RightLines) < n {
		n = len(split.RightLines)
	}
	for i := 0; i < n; i++ {
		if split.LeftLines[i].Type == LineRemoved {
			s.Deletions++
		}
		if split.RightLines[i].Type == LineAdded {
			s.Additions++
		}
	}
	return s
}

var fileLanguages = map[string]string{
	"ts": "typescript", "tsx": "typescript",
	"js": "javascript", "jsx": "javascript",
	"rs":  "rust",
	"py":  "python",
	"go":  "go",
	"java": "java",
	"kt":  "kotlin",
	"swift": "swift",
	"c": "c", "h": "c",
	"cpp": "cpp", "cc": "cpp", "cxx": "cpp",
	"cs":  "csharp",
	"rb":  "ruby",
	"php": "php",
	"sh": "bash", "bash": "bash", "zsh": "bash",
	"json": "json",
	"yml": "yaml", "yaml": "yaml",
	"toml": "toml",
	"md":   "markdown",
	"css":  "css",
	"scss": "scss",
	"less": "less",
}

// FileLanguage returns the syntax-highlighting language for filePath based
// on its extension, or "" if unknown or filePath is empty.
func FileLanguage(filePath string) string {
	if filePath == "" {
		return ""
	}
	idx := strings.LastIndex(filePath, ".")
	if idx < 0 || idx == len(filePath)-1 {
		return ""
	}
	ext := strings.ToLower(filePath[idx+1:])
	return fileLanguages[ext]
}
