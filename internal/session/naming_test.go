package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "hello-world", sanitizeName("Hello World!"))
	assert.Equal(t, "implement-user-auth", sanitizeName("implement-user-auth"))
	assert.Equal(t, "api-docs-tests", sanitizeName("API Docs & Tests"))
	assert.Equal(t, "multiple-hyphens", sanitizeName("--multiple--hyphens--"))

	long := "this-is-a-very-long-name-that-exceeds-thirty-characters"
	assert.LessOrEqual(t, len(sanitizeName(long)), maxNameLength)
}

func TestTruncatePrompt(t *testing.T) {
	short := "Short task"
	assert.Equal(t, short, truncatePrompt(short))

	long := "line one\nline two\nline three\nline four\nline five should be dropped"
	result := truncatePrompt(long)
	assert.LessOrEqual(t, strings.Count(result, "\n")+1, maxPromptLines)
	assert.LessOrEqual(t, len(result), maxPromptLength)
}

func TestValidateSessionName(t *testing.T) {
	assert.True(t, validateSessionName("my-session"))
	assert.True(t, validateSessionName("_leading-underscore"))
	assert.True(t, validateSessionName("dotted.name"))
	assert.False(t, validateSessionName(""))
	assert.False(t, validateSessionName("-starts-with-hyphen"))
	assert.False(t, validateSessionName(strings.Repeat("a", 101)))
	assert.False(t, validateSessionName("has space"))
}

func TestRandomSuffixLength(t *testing.T) {
	s := randomSuffix(2)
	assert.Len(t, s, 2)
	for _, c := range s {
		assert.True(t, c >= 'a' && c <= 'z')
	}
}

func TestGenerateSessionFallbackName(t *testing.T) {
	name := generateSessionFallbackName("Implement user authentication system")
	assert.NotEmpty(t, name)
	assert.LessOrEqual(t, len(name), maxNameLength)

	fallback := generateSessionFallbackName("!!!")
	assert.True(t, strings.HasPrefix(fallback, "session-"))
}
