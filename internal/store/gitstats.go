package store

import (
	"database/sql"
	"fmt"
	"time"
)

// GitStats is the persisted row shape for a session's last-computed diff
// stats, refreshed by the 60s activity poll (internal/daemon).
type GitStats struct {
	SessionID        string
	FilesChanged     int
	LinesAdded       int
	LinesRemoved     int
	HasUncommitted   bool
	CalculatedAt     time.Time
	LastDiffChangeTS sql.NullTime
}

// UpsertGitStats writes the latest stats snapshot for a session.
func (s *Store) UpsertGitStats(g *GitStats) error {
	_, err := s.db.Exec(`INSERT INTO git_stats
		(session_id, files_changed, lines_added, lines_removed, has_uncommitted, calculated_at, last_diff_change_ts)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(session_id) DO UPDATE SET
			files_changed = excluded.files_changed,
			lines_added = excluded.lines_added,
			lines_removed = excluded.lines_removed,
			has_uncommitted = excluded.has_uncommitted,
			calculated_at = excluded.calculated_at,
			last_diff_change_ts = excluded.last_diff_change_ts`,
		g.SessionID, g.FilesChanged, g.LinesAdded, g.LinesRemoved, g.HasUncommitted,
		g.CalculatedAt, g.LastDiffChangeTS)
	if err != nil {
		return fmt.Errorf("upsert git stats: %w", err)
	}
	return nil
}

// GetGitStats returns the stats row for a session, or nil if never computed.
func (s *Store) GetGitStats(sessionID string) (*GitStats, error) {
	var g GitStats
	err := s.db.QueryRow(`SELECT session_id, files_changed, lines_added, lines_removed,
		has_uncommitted, calculated_at, last_diff_change_ts FROM git_stats WHERE session_id=?`,
		sessionID).Scan(&g.SessionID, &g.FilesChanged, &g.LinesAdded, &g.LinesRemoved,
		&g.HasUncommitted, &g.CalculatedAt, &g.LastDiffChangeTS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get git stats: %w", err)
	}
	return &g, nil
}
