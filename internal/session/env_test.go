package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProjectEnvMissingFile(t *testing.T) {
	env := loadProjectEnv(t.TempDir())
	assert.Empty(t, env)
}

func TestLoadProjectEnvParsesFile(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repo, ".schaltwerk"), 0o755))
	content := "# comment\n\nFOO=bar\nBAZ = qux\n"
	require.NoError(t, os.WriteFile(filepath.Join(repo, ".schaltwerk", "env"), []byte(content), 0o644))

	env := loadProjectEnv(repo)
	assert.Equal(t, "bar", env["FOO"])
	assert.Equal(t, "qux", env["BAZ"])
}
