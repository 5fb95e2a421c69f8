package session

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// maxNameLength and maxPromptLength bound sanitize_name / truncate_prompt
// output, ported from the original's para_core/naming.rs.
const (
	maxNameLength   = 30
	maxPromptLength = 400
	maxPromptLines  = 4
)

// sanitizeName lowercases input, collapses every run of non-alphanumeric
// characters into a single '-', trims leading/trailing '-', and truncates
// to maxNameLength.
func sanitizeName(input string) string {
	lower := strings.ToLower(input)

	var collapsed strings.Builder
	prevHyphen := false
	for _, c := range lower {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			collapsed.WriteRune(c)
			prevHyphen = false
			continue
		}
		if !prevHyphen {
			collapsed.WriteByte('-')
		}
		prevHyphen = true
	}

	trimmed := strings.Trim(collapsed.String(), "-")
	if len(trimmed) > maxNameLength {
		trimmed = trimmed[:maxNameLength]
	}
	return trimmed
}

// truncatePrompt keeps the first 4 non-empty lines of prompt joined with
// newlines, truncated to maxPromptLength characters. It is only used as an
// internal aid when no explicit session name is given.
func truncatePrompt(prompt string) string {
	var lines []string
	for _, l := range strings.Split(prompt, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > maxPromptLines {
		lines = lines[:maxPromptLines]
	}
	joined := strings.Join(lines, "\n")
	if len(joined) > maxPromptLength {
		return joined[:maxPromptLength]
	}
	return joined
}

// validateSessionName checks length (1-100), that the first character is
// alphanumeric or '_', and that every character is alphanumeric, '-',
// '_', or '.'.
func validateSessionName(name string) bool {
	if len(name) == 0 || len(name) > 100 {
		return false
	}
	first := rune(name[0])
	if !isAlnum(first) && first != '_' {
		return false
	}
	for _, c := range name {
		if !isAlnum(c) && c != '-' && c != '_' && c != '.' {
			return false
		}
	}
	return true
}

func isAlnum(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// randomSuffix returns a lowercase alphabetic string of length n, used for
// the first ten collision-resolution attempts in findUniqueSessionPaths.
func randomSuffix(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// Extremely unlikely; fall back to a fixed, non-colliding-by-design
		// suffix rather than failing name generation outright.
		for i := range b {
			b[i] = byte(i)
		}
	}
	for i, c := range b {
		b[i] = 'a' + (c % 26)
	}
	return string(b)
}

// nameCandidate pairs a proposed session name with the branch/worktree
// path it would take.
type nameCandidate struct {
	Name         string
	Branch       string
	WorktreePath string
}

// generateSessionFallbackName builds a last-resort name from a prompt when
// the caller supplied neither an explicit name nor one that sanitizes to
// something non-empty.
func generateSessionFallbackName(prompt string) string {
	name := sanitizeName(truncatePrompt(prompt))
	if name != "" {
		return name
	}
	return fmt.Sprintf("session-%s", randomSuffix(6))
}
