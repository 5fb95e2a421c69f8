package daemon

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/schaltwerk/schaltwerkd/internal/config"
	"github.com/schaltwerk/schaltwerkd/internal/logging"
	"github.com/schaltwerk/schaltwerkd/internal/session"
	"github.com/schaltwerk/schaltwerkd/internal/store"
	"github.com/schaltwerk/schaltwerkd/internal/terminal"
)

// project bundles everything scoped to a single repository checkout: its
// SQLite state, session lifecycle manager, PTY manager, and loaded
// configuration. The daemon holds one of these per distinct repo_path it
// has seen a request for, loaded lazily and kept for the daemon's
// lifetime — mirroring grove's own one-Project-struct-per-repo shape in
// its (now superseded) project.go.
type project struct {
	repoPath string
	repoName string

	db        *store.Store
	sessions  *session.Manager
	terminals *terminal.Manager
	bus       *bus
	sink      *sinkAdapter

	mu  sync.Mutex
	cfg *config.ProjectConfig
}

func newProject(repoPath string, appCfg *config.AppConfig) (*project, error) {
	dbPath := filepath.Join(repoPath, ".schaltwerk", "state.db")
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open state db for %s: %w", repoPath, err)
	}

	cfg, err := config.LoadProjectConfig(repoPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load project config for %s: %w", repoPath, err)
	}

	if err := db.UpsertProjectConfig(&store.ProjectConfigRow{
		RepoPath:            repoPath,
		BranchPrefix:        cfg.BranchPrefix,
		DefaultParentBranch: nullableString(cfg.DefaultParentBranch),
		SetupScriptPath:     nullableString(cfg.SetupScriptPath),
		CommitOnReview:      cfg.CommitOnReview,
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache project config for %s: %w", repoPath, err)
	}

	idleThreshold := time.Duration(appCfg.IdleThresholdMS) * time.Millisecond
	b := newBus()
	sink := &sinkAdapter{bus: b}

	p := &project{
		repoPath:  repoPath,
		repoName:  filepath.Base(repoPath),
		db:        db,
		sessions:  session.NewManager(db, repoPath),
		terminals: terminal.NewManager(sink, idleThreshold),
		bus:       b,
		sink:      sink,
		cfg:       cfg,
	}

	if err := p.sessions.CleanupOrphanedWorktrees(); err != nil {
		logging.Warn("orphan worktree cleanup failed", "repo", repoPath, "error", err)
	}

	return p, nil
}

func (p *project) close() {
	p.db.Close()
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
