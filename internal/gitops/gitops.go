// Package gitops wraps the git primitives the session manager and diff
// engine need: repository opening, worktree creation/removal, uncommitted
// change detection, commit/discard/reset operations, and merge-base
// resolution. Object-level work goes through go-git; worktree management,
// which go-git does not implement, shells out to the git binary the way
// the teacher's project.go does.
package gitops

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/schaltwerk/schaltwerkd/internal/schalterr"
)

// Repo wraps an opened repository. It is always opened against a specific
// worktree path, never "discovered" upward — operating against the wrong
// checkout (parent repo instead of a session's worktree) is exactly the
// kind of bug this type exists to prevent.
type Repo struct {
	path string
	repo *git.Repository
}

// Open opens the repository rooted at worktreePath. It does not search
// parent directories.
func Open(worktreePath string) (*Repo, error) {
	r, err := git.PlainOpen(worktreePath)
	if err != nil {
		return nil, schalterr.Wrap(schalterr.GitFailure, fmt.Sprintf("open repo at %s", worktreePath), err)
	}
	return &Repo{path: worktreePath, repo: r}, nil
}

// Path returns the worktree root this Repo was opened against.
func (r *Repo) Path() string { return r.path }

func (r *Repo) git(args ...string) ([]byte, error) {
	cmd := exec.Command("git", append([]string{"-C", r.path}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, schalterr.Wrap(schalterr.GitFailure, fmt.Sprintf("git %s", strings.Join(args, " ")),
			fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))))
	}
	return out, nil
}

// HasUncommittedChanges reports whether the worktree has any dirty entries
// outside .schaltwerk/.
func (r *Repo) HasUncommittedChanges() (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, schalterr.Wrap(schalterr.GitFailure, "open worktree", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, schalterr.Wrap(schalterr.GitFailure, "status", err)
	}
	for path, s := range status {
		if isSchaltwerkPath(path) {
			continue
		}
		if s.Staging != git.Unmodified || s.Worktree != git.Unmodified {
			return true, nil
		}
	}
	return false, nil
}

func isSchaltwerkPath(relPath string) bool {
	clean := filepath.ToSlash(relPath)
	return clean == ".schaltwerk" || strings.HasPrefix(clean, ".schaltwerk/")
}

// CommitAll stages every change and commits with the repository's
// configured user.name/user.email. Returns a user-readable error naming
// the missing config key if the signature is unset.
func (r *Repo) CommitAll(message string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return schalterr.Wrap(schalterr.GitFailure, "open worktree", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return schalterr.Wrap(schalterr.GitFailure, "stage changes", err)
	}

	cfg, err := r.repo.Config()
	if err != nil {
		return schalterr.Wrap(schalterr.GitFailure, "read git config", err)
	}
	name := cfg.User.Name
	email := cfg.User.Email
	if name == "" || email == "" {
		return schalterr.New(schalterr.GitFailure, "git identity not configured: set user.name and user.email")
	}

	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: name, Email: email, When: time.Now()},
	})
	if err != nil {
		return schalterr.Wrap(schalterr.GitFailure, "commit", err)
	}
	return nil
}

// DiscardPath restricts discarding to paths inside the worktree. Tracked
// paths are reset in the index and checked out from HEAD; untracked paths
// are moved into .schaltwerk/discarded/<timestamp>/ rather than deleted.
func (r *Repo) DiscardPath(relPath string) error {
	abs := filepath.Join(r.path, relPath)
	cleanAbs, err := filepath.Abs(abs)
	if err != nil {
		return schalterr.Wrap(schalterr.IOFailure, "resolve path", err)
	}
	cleanRoot, err := filepath.Abs(r.path)
	if err != nil {
		return schalterr.Wrap(schalterr.IOFailure, "resolve worktree root", err)
	}
	if cleanAbs != cleanRoot && !strings.HasPrefix(cleanAbs, cleanRoot+string(filepath.Separator)) {
		return schalterr.New(schalterr.InvalidName, fmt.Sprintf("discard path %q escapes the worktree", relPath))
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return schalterr.Wrap(schalterr.GitFailure, "open worktree", err)
	}
	status, err := wt.Status()
	if err != nil {
		return schalterr.Wrap(schalterr.GitFailure, "status", err)
	}

	relClean := filepath.ToSlash(relPath)
	if s, ok := status[relClean]; ok && s.Worktree == git.Untracked {
		return r.moveToDiscarded(cleanAbs, relPath)
	}

	if _, err := r.git("checkout", "HEAD", "--", relPath); err != nil {
		return err
	}
	return nil
}

func (r *Repo) moveToDiscarded(absPath, relPath string) error {
	stamp := time.Now().UTC().Format("20060102_150405")
	destDir := filepath.Join(r.path, ".schaltwerk", "discarded", stamp, filepath.Dir(relPath))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return schalterr.Wrap(schalterr.IOFailure, "create discard dir", err)
	}
	dest := filepath.Join(destDir, filepath.Base(relPath))
	if err := os.Rename(absPath, dest); err != nil {
		return schalterr.Wrap(schalterr.IOFailure, "move discarded file", err)
	}
	return nil
}

var baseRefWhitelist = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

// ResetWorktreeToBase hard-resets the worktree to refs/heads/<base>,
// falling back to refs/remotes/origin/<base>, then removes untracked and
// ignored files. This unconditionally drops any un-pushed commits on the
// session branch — it is irreversible by design, matching the original
// implementation.
func (r *Repo) ResetWorktreeToBase(base string) error {
	if !baseRefWhitelist.MatchString(base) {
		return schalterr.New(schalterr.InvalidName, fmt.Sprintf("invalid base branch name %q", base))
	}

	ref := "refs/heads/" + base
	if _, err := r.repo.Reference(plumbing.ReferenceName(ref), true); err != nil {
		ref = "refs/remotes/origin/" + base
		if _, err := r.repo.Reference(plumbing.ReferenceName(ref), true); err != nil {
			return schalterr.New(schalterr.BaseBranchMissing, fmt.Sprintf("base branch %q not found locally or on origin", base))
		}
	}

	if _, err := r.git("reset", "--hard", ref); err != nil {
		return err
	}
	if _, err := r.git("clean", "-fdx"); err != nil {
		return err
	}
	return nil
}

// MergeBase returns the merge-base commit hash between HEAD and the given
// branch, used as the diff baseline.
func (r *Repo) MergeBase(branch string) (string, error) {
	out, err := r.git("merge-base", "HEAD", branch)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Head returns the current HEAD commit hash.
func (r *Repo) Head() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", schalterr.Wrap(schalterr.GitFailure, "resolve HEAD", err)
	}
	return head.Hash().String(), nil
}

// CreateWorktree creates a new worktree at worktreeDir on branchName,
// branching from baseBranch in the given main checkout. Mirrors the
// teacher's try-new-branch-then-fallback-to-existing shape.
func CreateWorktree(mainDir, worktreeDir, branchName, baseBranch string) error {
	if baseBranch != "" {
		if _, err := exec.Command("git", "-C", mainDir, "rev-parse", "--verify", baseBranch).CombinedOutput(); err != nil {
			return schalterr.New(schalterr.BaseBranchMissing, fmt.Sprintf("base branch %q not found", baseBranch))
		}
	}

	if err := os.MkdirAll(filepath.Dir(worktreeDir), 0o755); err != nil {
		return schalterr.Wrap(schalterr.IOFailure, "create worktrees dir", err)
	}

	args := []string{"-C", mainDir, "worktree", "add", "-b", branchName, worktreeDir}
	if baseBranch != "" {
		args = append(args, baseBranch)
	}
	if out, err := exec.Command("git", args...).CombinedOutput(); err != nil {
		fallback := []string{"-C", mainDir, "worktree", "add", worktreeDir, branchName}
		if out2, err2 := exec.Command("git", fallback...).CombinedOutput(); err2 != nil {
			return schalterr.Wrap(schalterr.GitFailure, "create worktree",
				fmt.Errorf("%s; fallback: %s", strings.TrimSpace(string(out)), strings.TrimSpace(string(out2))))
		}
	}
	return nil
}

// RemoveWorktree force-removes a worktree. Errors are returned but the
// caller (orphan cleanup) typically treats them as best-effort.
func RemoveWorktree(mainDir, worktreeDir string) error {
	_, err := exec.Command("git", "-C", mainDir, "worktree", "remove", "--force", worktreeDir).CombinedOutput()
	return err
}

// ArchiveBranch renames a branch instead of deleting it, used on cancel so
// history is never lost. prefix is the project's branch prefix (e.g.
// "schaltwerk") and name is the session name, not the full branch path. The
// new name, formatted <prefix>/archived/<unix_ts>/<name>, is returned.
func ArchiveBranch(mainDir, branchName, prefix, name string) (string, error) {
	archived := fmt.Sprintf("%s/archived/%d/%s", prefix, time.Now().UTC().Unix(), name)
	if out, err := exec.Command("git", "-C", mainDir, "branch", "-m", branchName, archived).CombinedOutput(); err != nil {
		return "", schalterr.Wrap(schalterr.GitFailure, "archive branch", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))))
	}
	return archived, nil
}

// ListWorktrees returns the paths of every worktree git currently has
// registered for mainDir, used by orphan cleanup (§4.2.6) to find
// directories with no matching session.
func ListWorktrees(mainDir string) ([]string, error) {
	out, err := exec.Command("git", "-C", mainDir, "worktree", "list", "--porcelain").CombinedOutput()
	if err != nil {
		return nil, schalterr.Wrap(schalterr.GitFailure, "list worktrees", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))))
	}
	var paths []string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "worktree ") {
			paths = append(paths, strings.TrimPrefix(line, "worktree "))
		}
	}
	return paths, nil
}
