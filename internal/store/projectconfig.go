package store

import (
	"database/sql"
	"fmt"
)

// ProjectConfigRow mirrors config.ProjectConfig for the DB-cached copy
// described in §6.4, so a daemon restart does not require re-parsing YAML
// to know what was last active.
type ProjectConfigRow struct {
	RepoPath            string
	BranchPrefix        string
	DefaultParentBranch sql.NullString
	SetupScriptPath     sql.NullString
	CommitOnReview      bool
}

// UpsertProjectConfig mirrors a loaded YAML project config into the DB.
func (s *Store) UpsertProjectConfig(c *ProjectConfigRow) error {
	_, err := s.db.Exec(`INSERT INTO project_config
		(repo_path, branch_prefix, default_parent_branch, setup_script_path, commit_on_review)
		VALUES (?,?,?,?,?)
		ON CONFLICT(repo_path) DO UPDATE SET
			branch_prefix = excluded.branch_prefix,
			default_parent_branch = excluded.default_parent_branch,
			setup_script_path = excluded.setup_script_path,
			commit_on_review = excluded.commit_on_review`,
		c.RepoPath, c.BranchPrefix, c.DefaultParentBranch, c.SetupScriptPath, c.CommitOnReview)
	if err != nil {
		return fmt.Errorf("upsert project config: %w", err)
	}
	return nil
}

// GetProjectConfig returns the cached project config row, or nil if never loaded.
func (s *Store) GetProjectConfig(repoPath string) (*ProjectConfigRow, error) {
	var c ProjectConfigRow
	err := s.db.QueryRow(`SELECT repo_path, branch_prefix, default_parent_branch,
		setup_script_path, commit_on_review FROM project_config WHERE repo_path=?`,
		repoPath).Scan(&c.RepoPath, &c.BranchPrefix, &c.DefaultParentBranch,
		&c.SetupScriptPath, &c.CommitOnReview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project config: %w", err)
	}
	return &c, nil
}
