package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaltwerk/schaltwerkd/internal/store"
)

func TestToSessionInfoFlagsMissingWorktree(t *testing.T) {
	dir := t.TempDir()
	worktree := filepath.Join(dir, "wt")
	require.NoError(t, os.MkdirAll(filepath.Join(worktree, ".git"), 0o755))

	present := &store.Session{
		ID:           "s1",
		Name:         "present",
		Branch:       "schaltwerk/present",
		WorktreePath: worktree,
		Status:       store.StatusActive,
		SessionState: store.StateRunning,
	}
	assert.False(t, toSessionInfo(present).Missing)

	missing := &store.Session{
		ID:           "s2",
		Name:         "missing",
		Branch:       "schaltwerk/missing",
		WorktreePath: filepath.Join(dir, "does-not-exist"),
		Status:       store.StatusActive,
		SessionState: store.StateRunning,
	}
	assert.True(t, toSessionInfo(missing).Missing)
}

func TestToSessionInfoOnlyChecksMissingForRunningOrReviewed(t *testing.T) {
	spec := &store.Session{
		ID:           "s3",
		Name:         "a-spec",
		Status:       store.StatusSpec,
		SessionState: store.StateSpec,
	}
	assert.False(t, toSessionInfo(spec).Missing)
}
