package gitops

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaltwerk/schaltwerkd/internal/schalterr"
)

func initRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init")
	run("config", "user.name", "Test User")
	run("config", "user.email", "test@example.com")
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func commitAll(t *testing.T, dir, message string) {
	t.Helper()
	require.NoError(t, exec.Command("git", "-C", dir, "add", "-A").Run())
	cmd := exec.Command("git", "-C", dir, "commit", "-m", message)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestHasUncommittedChangesIgnoresSchaltwerkDir(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	writeFile(t, dir, "README.md", "hello\n")
	commitAll(t, dir, "init")

	repo, err := Open(dir)
	require.NoError(t, err)

	dirty, err := repo.HasUncommittedChanges()
	require.NoError(t, err)
	assert.False(t, dirty)

	writeFile(t, dir, ".schaltwerk/state.json", "{}")
	dirty, err = repo.HasUncommittedChanges()
	require.NoError(t, err)
	assert.False(t, dirty, "changes under .schaltwerk/ must not count as uncommitted")

	writeFile(t, dir, "main.go", "package main\n")
	dirty, err = repo.HasUncommittedChanges()
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestCommitAllStagesAndCommits(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	writeFile(t, dir, "README.md", "hello\n")
	commitAll(t, dir, "init")

	repo, err := Open(dir)
	require.NoError(t, err)

	writeFile(t, dir, "a.txt", "content\n")
	require.NoError(t, repo.CommitAll("add a.txt"))

	dirty, err := repo.HasUncommittedChanges()
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestDiscardPathRejectsEscapingPaths(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	writeFile(t, dir, "README.md", "hello\n")
	commitAll(t, dir, "init")

	repo, err := Open(dir)
	require.NoError(t, err)

	err = repo.DiscardPath("../../etc/passwd")
	assert.Error(t, err)
}

func TestDiscardPathMovesUntrackedFile(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	writeFile(t, dir, "README.md", "hello\n")
	commitAll(t, dir, "init")

	writeFile(t, dir, "scratch.txt", "temp\n")

	repo, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, repo.DiscardPath("scratch.txt"))

	_, statErr := os.Stat(filepath.Join(dir, "scratch.txt"))
	assert.True(t, os.IsNotExist(statErr))

	matches, _ := filepath.Glob(filepath.Join(dir, ".schaltwerk", "discarded", "*", "scratch.txt"))
	assert.Len(t, matches, 1)
}

func TestResetWorktreeToBaseRejectsInvalidRefName(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	writeFile(t, dir, "README.md", "hello\n")
	commitAll(t, dir, "init")

	repo, err := Open(dir)
	require.NoError(t, err)

	err = repo.ResetWorktreeToBase("main; rm -rf /")
	assert.Error(t, err)
}

func TestResetWorktreeToBaseMissingBranch(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	writeFile(t, dir, "README.md", "hello\n")
	commitAll(t, dir, "init")

	repo, err := Open(dir)
	require.NoError(t, err)

	err = repo.ResetWorktreeToBase("nonexistent-base")
	assert.Error(t, err)
}

func TestMergeBaseAndHead(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	writeFile(t, dir, "README.md", "hello\n")
	commitAll(t, dir, "init")

	require.NoError(t, exec.Command("git", "-C", dir, "checkout", "-b", "feature").Run())
	writeFile(t, dir, "feature.txt", "x\n")
	commitAll(t, dir, "feature commit")

	require.NoError(t, exec.Command("git", "-C", dir, "checkout", "-").Run())

	repo, err := Open(dir)
	require.NoError(t, err)

	head, err := repo.Head()
	require.NoError(t, err)
	assert.NotEmpty(t, head)

	base, err := repo.MergeBase("feature")
	require.NoError(t, err)
	assert.NotEmpty(t, base)
}

func TestCreateAndRemoveWorktree(t *testing.T) {
	mainDir := t.TempDir()
	initRepo(t, mainDir)
	writeFile(t, mainDir, "README.md", "hello\n")
	commitAll(t, mainDir, "init")

	worktreeDir := filepath.Join(t.TempDir(), "wt1")
	err := CreateWorktree(mainDir, worktreeDir, "schaltwerk/wt1", "")
	require.NoError(t, err)

	_, err = os.Stat(worktreeDir)
	require.NoError(t, err)

	worktrees, err := ListWorktrees(mainDir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(worktrees), 2)

	require.NoError(t, RemoveWorktree(mainDir, worktreeDir))
}

func TestCreateWorktreeFailsFastOnMissingBaseBranch(t *testing.T) {
	mainDir := t.TempDir()
	initRepo(t, mainDir)
	writeFile(t, mainDir, "README.md", "hello\n")
	commitAll(t, mainDir, "init")

	worktreeDir := filepath.Join(t.TempDir(), "wt1")
	err := CreateWorktree(mainDir, worktreeDir, "schaltwerk/wt1", "does-not-exist")
	require.Error(t, err)
	assert.True(t, schalterr.Is(err, schalterr.BaseBranchMissing))

	_, statErr := os.Stat(worktreeDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestArchiveBranchUsesPrefixedArchivePath(t *testing.T) {
	mainDir := t.TempDir()
	initRepo(t, mainDir)
	writeFile(t, mainDir, "README.md", "hello\n")
	commitAll(t, mainDir, "init")

	require.NoError(t, exec.Command("git", "-C", mainDir, "checkout", "-b", "schaltwerk/feat-x").Run())

	archived, err := ArchiveBranch(mainDir, "schaltwerk/feat-x", "schaltwerk", "feat-x")
	require.NoError(t, err)
	assert.Regexp(t, `^schaltwerk/archived/\d+/feat-x$`, archived)
}
