package daemon

import (
	"database/sql"
	"time"

	"github.com/schaltwerk/schaltwerkd/internal/gitdiff"
	"github.com/schaltwerk/schaltwerkd/internal/logging"
	"github.com/schaltwerk/schaltwerkd/internal/store"
)

// runActivityPoll refreshes diff stats and last-activity for every running
// session across every loaded project every interval, per §5's 60s
// activity-polling cycle. It stops when the daemon's listener closes.
func (d *Daemon) runActivityPoll(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopPoll:
			return
		case <-ticker.C:
			for _, p := range d.snapshotProjects() {
				p.refreshActivity()
			}
		}
	}
}

func (p *project) refreshActivity() {
	sessions, err := p.sessions.List()
	if err != nil {
		logging.Warn("activity poll: list sessions failed", "repo", p.repoPath, "error", err)
		return
	}

	for _, sess := range sessions {
		if sess.SessionState != store.StateRunning {
			continue
		}

		stats, err := gitdiff.FastStats(sess.WorktreePath, sess.ParentBranch)
		if err != nil {
			logging.Warn("activity poll: stats failed", "session", sess.Name, "error", err)
			continue
		}

		var lastChange sql.NullTime
		if !stats.LastDiffChangeTS.IsZero() {
			lastChange = sql.NullTime{Time: stats.LastDiffChangeTS, Valid: true}
		}

		if err := p.db.UpsertGitStats(&store.GitStats{
			SessionID:        sess.ID,
			FilesChanged:     stats.FilesChanged,
			LinesAdded:       stats.LinesAdded,
			LinesRemoved:     stats.LinesRemoved,
			HasUncommitted:   stats.HasUncommitted,
			CalculatedAt:     time.Now().UTC(),
			LastDiffChangeTS: lastChange,
		}); err != nil {
			logging.Warn("activity poll: upsert stats failed", "session", sess.Name, "error", err)
			continue
		}

		if !stats.LastDiffChangeTS.IsZero() {
			_ = p.db.UpdateLastActivity(sess.ID, stats.LastDiffChangeTS)
		}

		p.sink.emitNamed("session-git-stats")
	}

	p.sink.emitNamed("sessions-refreshed")
}
