// Package session implements the lifecycle manager: the spec → running →
// reviewed/cancelled state machine, git worktree provisioning, name
// collision resolution, setup-script execution, and orphan worktree
// cleanup.
package session

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schaltwerk/schaltwerkd/internal/config"
	"github.com/schaltwerk/schaltwerkd/internal/gitops"
	"github.com/schaltwerk/schaltwerkd/internal/logging"
	"github.com/schaltwerk/schaltwerkd/internal/schalterr"
	"github.com/schaltwerk/schaltwerkd/internal/store"
)

const defaultBranchPrefix = "schaltwerk"

// StartOptions configures Manager.Start.
type StartOptions struct {
	Name            string
	ParentBranch    string
	AgentKind       string
	SkipPermissions bool
}

// Manager owns the session state machine for one repository.
type Manager struct {
	db       *store.Store
	repoPath string
	repoName string

	mu            sync.Mutex
	reservedNames map[string]struct{}
}

// NewManager constructs a Manager bound to a single repository checkout.
func NewManager(db *store.Store, repoPath string) *Manager {
	return &Manager{
		db:            db,
		repoPath:      repoPath,
		repoName:      filepath.Base(repoPath),
		reservedNames: make(map[string]struct{}),
	}
}

func (m *Manager) worktreesDir() string {
	return filepath.Join(m.repoPath, ".schaltwerk", "worktrees")
}

func (m *Manager) branchPrefix() string {
	row, err := m.db.GetProjectConfig(m.repoPath)
	if err != nil || row == nil || row.BranchPrefix == "" {
		return defaultBranchPrefix
	}
	return row.BranchPrefix
}

// CreateSpec inserts a spec-state session with no git or filesystem work.
func (m *Manager) CreateSpec(name, content string) (*store.Session, error) {
	if !validateSessionName(name) {
		return nil, schalterr.New(schalterr.InvalidName, fmt.Sprintf("invalid session name %q", name))
	}

	existing, err := m.db.GetSessionByName(m.repoPath, name)
	if err != nil {
		return nil, schalterr.Wrap(schalterr.Internal, "check existing session", err)
	}
	if existing != nil && existing.Status != store.StatusCancelled {
		return nil, schalterr.New(schalterr.AlreadyExists, fmt.Sprintf("session %q already exists", name))
	}

	now := time.Now().UTC()
	sess := &store.Session{
		ID:           uuid.NewString(),
		Name:         name,
		RepoPath:     m.repoPath,
		RepoName:     m.repoName,
		Status:       store.StatusSpec,
		SessionState: store.StateSpec,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	sess.SpecContent.String = content
	sess.SpecContent.Valid = true

	if err := m.db.InsertSession(sess); err != nil {
		return nil, schalterr.Wrap(schalterr.Internal, "insert spec session", err)
	}
	logging.Info("spec created", "session", name, "repo", m.repoPath)
	return sess, nil
}

// Start provisions the worktree/branch for a session (spec-to-running, or
// a fresh start with no prior spec) and runs the project's setup script if
// configured.
func (m *Manager) Start(opts StartOptions, cfg *config.ProjectConfig, gitRoot string) (*store.Session, error) {
	name, branch, worktreePath, err := m.findUniqueSessionPaths(opts.Name, cfg)
	if err != nil {
		return nil, err
	}
	defer m.releaseName(name)

	if err := m.ensureNoStaleWorktree(worktreePath); err != nil {
		return nil, err
	}

	parentBranch := opts.ParentBranch
	if parentBranch == "" {
		parentBranch = cfg.DefaultParentBranch
	}

	if err := gitops.CreateWorktree(gitRoot, worktreePath, branch, parentBranch); err != nil {
		return nil, err
	}

	if cfg.SetupScriptPath != "" {
		if err := m.runSetupScript(cfg.SetupScriptPath, name, branch, worktreePath); err != nil {
			_ = gitops.RemoveWorktree(gitRoot, worktreePath)
			return nil, err
		}
	}

	now := time.Now().UTC()
	existing, err := m.db.GetSessionByName(m.repoPath, name)
	if err != nil {
		_ = gitops.RemoveWorktree(gitRoot, worktreePath)
		return nil, schalterr.Wrap(schalterr.Internal, "check existing session", err)
	}

	var sess *store.Session
	if existing != nil {
		sess = existing
		sess.Branch = branch
		sess.WorktreePath = worktreePath
		sess.ParentBranch = parentBranch
		sess.Status = store.StatusActive
		sess.SessionState = store.StateRunning
		sess.UpdatedAt = now
		if err := m.db.UpdateSessionState(sess.ID, store.StatusActive, store.StateRunning, false, false); err != nil {
			return nil, schalterr.Wrap(schalterr.Internal, "update session state", err)
		}
		if err := m.db.UpdateSessionBranch(sess.ID, branch); err != nil {
			return nil, schalterr.Wrap(schalterr.Internal, "update session branch", err)
		}
		if _, err := m.db.DB().Exec(`UPDATE sessions SET worktree_path=?, parent_branch=? WHERE id=?`,
			worktreePath, parentBranch, sess.ID); err != nil {
			return nil, schalterr.Wrap(schalterr.Internal, "update session worktree", err)
		}
	} else {
		sess = &store.Session{
			ID:            uuid.NewString(),
			Name:          name,
			RepoPath:      m.repoPath,
			RepoName:      m.repoName,
			Branch:        branch,
			ParentBranch:  parentBranch,
			WorktreePath:  worktreePath,
			Status:        store.StatusActive,
			SessionState:  store.StateRunning,
			ResumeAllowed: false,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		sess.OriginalAgentType.String = opts.AgentKind
		sess.OriginalAgentType.Valid = opts.AgentKind != ""
		sess.OriginalSkipPermissions.Bool = opts.SkipPermissions
		sess.OriginalSkipPermissions.Valid = true
		if err := m.db.InsertSession(sess); err != nil {
			_ = gitops.RemoveWorktree(gitRoot, worktreePath)
			return nil, schalterr.Wrap(schalterr.Internal, "insert session", err)
		}
	}

	logging.Info("session started", "session", name, "branch", branch, "worktree", worktreePath)
	return sess, nil
}

// MarkReviewed requires session_state=running, optionally commits pending
// changes first, then transitions to reviewed/ready_to_merge.
func (m *Manager) MarkReviewed(id string, commitFirst bool, commitMessage string) error {
	sess, err := m.db.GetSession(id)
	if err != nil {
		return schalterr.Wrap(schalterr.Internal, "load session", err)
	}
	if sess == nil {
		return schalterr.New(schalterr.NotFound, fmt.Sprintf("session %q not found", id))
	}
	if sess.SessionState != store.StateRunning {
		return schalterr.New(schalterr.Internal, "session must be running to mark reviewed")
	}

	if commitFirst {
		repo, err := gitops.Open(sess.WorktreePath)
		if err != nil {
			return err
		}
		dirty, err := repo.HasUncommittedChanges()
		if err != nil {
			return err
		}
		if dirty {
			if commitMessage == "" {
				commitMessage = fmt.Sprintf("schaltwerk: review checkpoint for %s", sess.Name)
			}
			if err := repo.CommitAll(commitMessage); err != nil {
				return err
			}
		}
	}

	return m.db.UpdateSessionState(id, store.StatusActive, store.StateReviewed, true, sess.ResumeAllowed)
}

// Cancel removes the worktree, archives the branch, and marks the session
// cancelled. It kills no terminals, and neither does the daemon's cancel
// handler: PTYs bound to the session are left running.
func (m *Manager) Cancel(id, gitRoot string) error {
	sess, err := m.db.GetSession(id)
	if err != nil {
		return schalterr.Wrap(schalterr.Internal, "load session", err)
	}
	if sess == nil {
		return schalterr.New(schalterr.NotFound, fmt.Sprintf("session %q not found", id))
	}

	if sess.SessionState == store.StateSpec {
		if sess.SpecContent.Valid {
			if err := m.db.ArchiveSpec(uuid.NewString(), sess.ID, sess.Name, sess.SpecContent.String, time.Now().UTC()); err != nil {
				return schalterr.Wrap(schalterr.Internal, "archive spec content", err)
			}
		}
		return m.db.UpdateSessionState(id, store.StatusCancelled, sess.SessionState, sess.ReadyToMerge, false)
	}

	if sess.WorktreePath != "" {
		_ = gitops.RemoveWorktree(gitRoot, sess.WorktreePath)
		_ = os.RemoveAll(sess.WorktreePath)
	}
	if sess.Branch != "" {
		if archived, err := gitops.ArchiveBranch(gitRoot, sess.Branch, m.branchPrefix(), sess.Name); err == nil {
			_ = m.db.UpdateSessionBranch(id, archived)
		} else {
			logging.Warn("failed to archive branch", "session", sess.Name, "branch", sess.Branch, "error", err)
		}
	}

	return m.db.UpdateSessionState(id, store.StatusCancelled, sess.SessionState, sess.ReadyToMerge, false)
}

// Rename is only permitted while a session is still in the spec state.
func (m *Manager) Rename(id, newName string) error {
	if !validateSessionName(newName) {
		return schalterr.New(schalterr.InvalidName, fmt.Sprintf("invalid session name %q", newName))
	}
	sess, err := m.db.GetSession(id)
	if err != nil {
		return schalterr.Wrap(schalterr.Internal, "load session", err)
	}
	if sess == nil {
		return schalterr.New(schalterr.NotFound, fmt.Sprintf("session %q not found", id))
	}
	if sess.SessionState != store.StateSpec {
		return schalterr.New(schalterr.Internal, "rename only allowed while in spec state")
	}
	return m.db.RenameSession(id, newName)
}

// List returns every non-cancelled session for the repository.
func (m *Manager) List() ([]*store.Session, error) {
	sessions, err := m.db.ListSessions(m.repoPath)
	if err != nil {
		return nil, err
	}
	out := sessions[:0]
	for _, sess := range sessions {
		if sess.Status == store.StatusCancelled {
			continue
		}
		m.repairStateDrift(sess)
		out = append(out, sess)
	}
	return out, nil
}

// Get returns a single session by id.
func (m *Manager) Get(id string) (*store.Session, error) {
	sess, err := m.db.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		m.repairStateDrift(sess)
	}
	return sess, nil
}

// repairStateDrift enforces status=spec ⇔ session_state=spec. A session can
// only drift out of that relationship through a bug elsewhere in the
// lifecycle; when it happens, session_state is corrected to match status and
// the correction is logged and persisted rather than silently surfaced to
// callers.
func (m *Manager) repairStateDrift(sess *store.Session) {
	if sess.Status == store.StatusSpec && sess.SessionState != store.StateSpec {
		logging.Warn("repairing session_state drift", "session", sess.Name, "id", sess.ID,
			"status", sess.Status, "session_state_was", sess.SessionState, "session_state_now", store.StateSpec)
		sess.SessionState = store.StateSpec
		if err := m.db.UpdateSessionState(sess.ID, sess.Status, sess.SessionState, sess.ReadyToMerge, sess.ResumeAllowed); err != nil {
			logging.Warn("failed to persist session_state drift repair", "session", sess.Name, "id", sess.ID, "error", err)
		}
	}
}

// UpdateSpecContent overwrites a spec session's markdown.
func (m *Manager) UpdateSpecContent(id, content string) error {
	return m.db.UpdateSpecContent(id, content)
}

// AppendSpecContent appends to a spec session's markdown.
func (m *Manager) AppendSpecContent(id, extra string) error {
	return m.db.AppendSpecContent(id, extra)
}

// ── name collision resolution ──────────────────────────────────────────

func (m *Manager) checkNameAvailable(name, branchPrefix string) (bool, error) {
	branch := branchPrefix + "/" + name
	worktreePath := filepath.Join(m.worktreesDir(), name)

	if _, err := os.Stat(worktreePath); err == nil {
		return false, nil
	}

	existing, err := m.db.GetSessionByName(m.repoPath, name)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.Status != store.StatusCancelled && existing.Status != store.StatusSpec {
		return false, nil
	}

	m.mu.Lock()
	_, reserved := m.reservedNames[name]
	m.mu.Unlock()
	if reserved {
		return false, nil
	}

	branchExists, err := m.branchExists(branch)
	if err != nil {
		return false, err
	}
	return !branchExists, nil
}

func (m *Manager) branchExists(branch string) (bool, error) {
	cmd := exec.Command("git", "-C", m.repoPath, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	return cmd.Run() == nil, nil
}

func (m *Manager) reserveName(name string) {
	m.mu.Lock()
	m.reservedNames[name] = struct{}{}
	m.mu.Unlock()
}

func (m *Manager) releaseName(name string) {
	m.mu.Lock()
	delete(m.reservedNames, name)
	m.mu.Unlock()
}

// findUniqueSessionPaths resolves (name, branch, worktreePath) per
// §4.2.3 step 1: try the raw name, then 10 two-character random suffixes,
// then numeric suffixes 1..100 — 110 suffixed attempts after the raw name.
func (m *Manager) findUniqueSessionPaths(baseName string, cfg *config.ProjectConfig) (name, branch, worktreePath string, err error) {
	branchPrefix := defaultBranchPrefix
	if cfg != nil && cfg.BranchPrefix != "" {
		branchPrefix = cfg.BranchPrefix
	}

	try := func(candidate string) (bool, error) {
		ok, err := m.checkNameAvailable(candidate, branchPrefix)
		if err != nil || !ok {
			return false, err
		}
		m.reserveName(candidate)
		return true, nil
	}

	ok, err := try(baseName)
	if err != nil {
		return "", "", "", schalterr.Wrap(schalterr.Internal, "check name availability", err)
	}
	if ok {
		name = baseName
		branch = branchPrefix + "/" + name
		worktreePath = filepath.Join(m.worktreesDir(), name)
		return name, branch, worktreePath, nil
	}

	for i := 0; i < 10; i++ {
		candidate := fmt.Sprintf("%s-%s", baseName, randomSuffix(2))
		ok, err := try(candidate)
		if err != nil {
			return "", "", "", schalterr.Wrap(schalterr.Internal, "check name availability", err)
		}
		if ok {
			return candidate, branchPrefix + "/" + candidate, filepath.Join(m.worktreesDir(), candidate), nil
		}
	}

	for i := 1; i <= 100; i++ {
		candidate := fmt.Sprintf("%s-%d", baseName, i)
		ok, err := try(candidate)
		if err != nil {
			return "", "", "", schalterr.Wrap(schalterr.Internal, "check name availability", err)
		}
		if ok {
			return candidate, branchPrefix + "/" + candidate, filepath.Join(m.worktreesDir(), candidate), nil
		}
	}

	return "", "", "", schalterr.New(schalterr.InvalidName, "unable to find a unique session name after 110 attempts")
}

// ensureNoStaleWorktree prunes git's worktree registry, then forcibly
// removes the directory if anything is left behind.
func (m *Manager) ensureNoStaleWorktree(worktreePath string) error {
	_ = exec.Command("git", "-C", m.repoPath, "worktree", "prune").Run()

	if _, err := os.Stat(worktreePath); err == nil {
		if _, gitErr := os.Stat(filepath.Join(worktreePath, ".git")); gitErr == nil {
			_ = gitops.RemoveWorktree(m.repoPath, worktreePath)
		}
		if _, err := os.Stat(worktreePath); err == nil {
			if err := os.RemoveAll(worktreePath); err != nil {
				return schalterr.Wrap(schalterr.IOFailure, "remove stale worktree directory", err)
			}
		}
	}
	return nil
}

// runSetupScript writes script to a unique temp file, executes it via a
// login shell with the session's env vars set, and removes the temp file
// regardless of outcome.
func (m *Manager) runSetupScript(script, sessionName, branchName, worktreePath string) error {
	scriptPath := filepath.Join(os.TempDir(), fmt.Sprintf("schaltwerk_setup_%s_%d_%d.sh",
		sessionName, os.Getpid(), time.Now().UnixNano()))

	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		return schalterr.Wrap(schalterr.IOFailure, "write setup script", err)
	}
	defer os.Remove(scriptPath)

	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}

	cmd := exec.Command(shell, "-lc", fmt.Sprintf("sh %s", shellQuote(scriptPath)))
	cmd.Dir = worktreePath
	cmd.Env = append(os.Environ(),
		"WORKTREE_PATH="+worktreePath,
		"REPO_PATH="+m.repoPath,
		"SESSION_NAME="+sessionName,
		"BRANCH_NAME="+branchName,
	)
	for k, v := range loadProjectEnv(m.repoPath) {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		return schalterr.Wrap(schalterr.SetupScriptFailed, "setup script failed",
			fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))))
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// CleanupOrphanedWorktrees removes any worktree directory under
// <repo>/.schaltwerk/worktrees/ with no matching non-spec session.
func (m *Manager) CleanupOrphanedWorktrees() error {
	worktrees, err := gitops.ListWorktrees(m.repoPath)
	if err != nil {
		return err
	}

	sessions, err := m.db.ListSessions(m.repoPath)
	if err != nil {
		return schalterr.Wrap(schalterr.Internal, "list sessions", err)
	}

	active := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		if s.SessionState == store.StateSpec {
			continue
		}
		if canon, err := filepath.Abs(s.WorktreePath); err == nil {
			active[canon] = struct{}{}
		}
	}

	managedPrefix := filepath.Join(m.repoPath, ".schaltwerk", "worktrees") + string(filepath.Separator)
	for _, wt := range worktrees {
		if !strings.HasPrefix(wt, managedPrefix) {
			continue
		}
		canon, err := filepath.Abs(wt)
		if err != nil {
			continue
		}
		if _, ok := active[canon]; ok {
			continue
		}
		logging.Info("removing orphaned worktree", "path", wt)
		_ = gitops.RemoveWorktree(m.repoPath, wt)
		_ = os.RemoveAll(wt)
	}
	return nil
}
