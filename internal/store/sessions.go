package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Status enumerates Session.Status values.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusSpec      Status = "spec"
)

// State enumerates Session.SessionState values.
type State string

const (
	StateSpec     State = "spec"
	StateRunning  State = "running"
	StateReviewed State = "reviewed"
)

// Session is the persisted row shape described by the schema.
type Session struct {
	ID                      string
	Name                    string
	DisplayName             sql.NullString
	RepoPath                string
	RepoName                string
	Branch                  string
	ParentBranch            string
	WorktreePath            string
	Status                  Status
	CreatedAt               time.Time
	UpdatedAt               time.Time
	LastActivity            sql.NullTime
	InitialPrompt           sql.NullString
	ReadyToMerge            bool
	OriginalAgentType       sql.NullString
	OriginalSkipPermissions sql.NullBool
	PendingNameGeneration   bool
	WasAutoGenerated        bool
	SpecContent             sql.NullString
	SessionState            State
	ResumeAllowed           bool
	VersionGroupID          sql.NullString
	VersionNumber           sql.NullInt64
}

const sessionColumns = `id, name, display_name, repo_path, repo_name, branch, parent_branch,
	worktree_path, status, created_at, updated_at, last_activity, initial_prompt,
	ready_to_merge, original_agent_type, original_skip_permissions,
	pending_name_generation, was_auto_generated, spec_content, session_state,
	resume_allowed, version_group_id, version_number`

func scanSession(row interface {
	Scan(dest ...any) error
}) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.Name, &s.DisplayName, &s.RepoPath, &s.RepoName, &s.Branch,
		&s.ParentBranch, &s.WorktreePath, &s.Status, &s.CreatedAt, &s.UpdatedAt,
		&s.LastActivity, &s.InitialPrompt, &s.ReadyToMerge, &s.OriginalAgentType,
		&s.OriginalSkipPermissions, &s.PendingNameGeneration, &s.WasAutoGenerated,
		&s.SpecContent, &s.SessionState, &s.ResumeAllowed, &s.VersionGroupID,
		&s.VersionNumber)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// InsertSession inserts a new session row.
func (s *Store) InsertSession(sess *Session) error {
	_, err := s.db.Exec(`INSERT INTO sessions (`+sessionColumns+`) VALUES
		(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sess.ID, sess.Name, sess.DisplayName, sess.RepoPath, sess.RepoName, sess.Branch,
		sess.ParentBranch, sess.WorktreePath, sess.Status, sess.CreatedAt, sess.UpdatedAt,
		sess.LastActivity, sess.InitialPrompt, sess.ReadyToMerge, sess.OriginalAgentType,
		sess.OriginalSkipPermissions, sess.PendingNameGeneration, sess.WasAutoGenerated,
		sess.SpecContent, sess.SessionState, sess.ResumeAllowed, sess.VersionGroupID,
		sess.VersionNumber)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSessionByName returns the session with the given (repoPath, name), or
// nil if not found.
func (s *Store) GetSessionByName(repoPath, name string) (*Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE repo_path = ? AND name = ?`,
		repoPath, name)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// GetSession returns the session by id, or nil if not found.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns every session for a repo, including cancelled ones;
// internal/session's List drops the cancelled ones.
func (s *Store) ListSessions(repoPath string) ([]*Session, error) {
	rows, err := s.db.Query(`SELECT `+sessionColumns+` FROM sessions WHERE repo_path = ?`, repoPath)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// UpdateSessionState updates the status/session_state/ready_to_merge/
// resume_allowed columns and bumps updated_at.
func (s *Store) UpdateSessionState(id string, status Status, state State, readyToMerge, resumeAllowed bool) error {
	_, err := s.db.Exec(`UPDATE sessions SET status=?, session_state=?, ready_to_merge=?,
		resume_allowed=?, updated_at=? WHERE id=?`,
		status, state, readyToMerge, resumeAllowed, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update session state: %w", err)
	}
	return nil
}

// UpdateSessionBranch updates only the branch column, used when a cancelled
// branch is archived under a new ref name — the sessions table keeps the
// branch name it last used for display even after archival.
func (s *Store) UpdateSessionBranch(id, branch string) error {
	_, err := s.db.Exec(`UPDATE sessions SET branch=?, updated_at=? WHERE id=?`,
		branch, time.Now().UTC(), id)
	return err
}

// UpdateLastActivity sets last_activity to at.
func (s *Store) UpdateLastActivity(id string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE sessions SET last_activity=?, updated_at=? WHERE id=?`,
		at, time.Now().UTC(), id)
	return err
}

// UpdateSpecContent overwrites a spec session's markdown content.
func (s *Store) UpdateSpecContent(id, content string) error {
	_, err := s.db.Exec(`UPDATE sessions SET spec_content=?, updated_at=? WHERE id=?`,
		content, time.Now().UTC(), id)
	return err
}

// AppendSpecContent appends to a spec session's markdown content.
func (s *Store) AppendSpecContent(id, extra string) error {
	_, err := s.db.Exec(`UPDATE sessions SET spec_content=COALESCE(spec_content,'') || ?, updated_at=? WHERE id=?`,
		extra, time.Now().UTC(), id)
	return err
}

// RenameSession renames a session still in the spec state.
func (s *Store) RenameSession(id, newName string) error {
	_, err := s.db.Exec(`UPDATE sessions SET name=?, updated_at=? WHERE id=?`,
		newName, time.Now().UTC(), id)
	return err
}

// DeleteSession removes a session row outright (used only for best-effort
// rollback of a failed start, never for a normal cancel).
func (s *Store) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id=?`, id)
	return err
}

// ArchiveSpec records a cancelled spec session's content for later recovery.
func (s *Store) ArchiveSpec(id, sessionID, name, content string, archivedAt time.Time) error {
	_, err := s.db.Exec(`INSERT INTO archived_specs (id, original_session_id, name, content, archived_at)
		VALUES (?,?,?,?,?)`, id, sessionID, name, content, archivedAt)
	return err
}
