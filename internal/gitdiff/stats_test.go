package gitdiff

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initStatsRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init")
	run("config", "user.name", "Test User")
	run("config", "user.email", "test@example.com")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", "-A")
	run("commit", "-m", "init")
	run("branch", "-M", "master")
	run("checkout", "-b", "feature")
	return dir
}

func TestFastStatsCountsChangedFiles(t *testing.T) {
	dir := initStatsRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("line1\nline2\n"), 0o644))

	cmd := exec.Command("git", "-C", dir, "add", "-A")
	require.NoError(t, cmd.Run())
	cmd = exec.Command("git", "-C", dir, "commit", "-m", "add new file")
	require.NoError(t, cmd.Run())

	stats, err := FastStats(dir, "master")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.FilesChanged, 1)
	assert.GreaterOrEqual(t, stats.LinesAdded, 2)
}

func TestFastStatsDetectsUncommittedChanges(t *testing.T) {
	dir := initStatsRepo(t)

	stats, err := FastStats(dir, "master")
	require.NoError(t, err)
	assert.False(t, stats.HasUncommitted)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.txt"), []byte("x\n"), 0o644))
	stats, err = FastStats(dir, "master")
	require.NoError(t, err)
	assert.True(t, stats.HasUncommitted)
}

func TestFastStatsIgnoresSchaltwerkDir(t *testing.T) {
	dir := initStatsRepo(t)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".schaltwerk"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".schaltwerk", "state.json"), []byte("{}"), 0o644))

	stats, err := FastStats(dir, "master")
	require.NoError(t, err)
	assert.False(t, stats.HasUncommitted, "changes under .schaltwerk/ must not count")
}

func TestFNV1aIsDeterministic(t *testing.T) {
	a := fnv1a(fnvOffsetBasis, []byte("hello"))
	b := fnv1a(fnvOffsetBasis, []byte("hello"))
	assert.Equal(t, a, b)

	c := fnv1a(fnvOffsetBasis, []byte("world"))
	assert.NotEqual(t, a, c)
}
