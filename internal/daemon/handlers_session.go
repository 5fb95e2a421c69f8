package daemon

import (
	"net"
	"os"

	"github.com/schaltwerk/schaltwerkd/internal/proto"
	"github.com/schaltwerk/schaltwerkd/internal/schalterr"
	"github.com/schaltwerk/schaltwerkd/internal/session"
	"github.com/schaltwerk/schaltwerkd/internal/store"
)

// resolveSessionID maps the wire protocol's human-facing session name to
// the internal id that internal/session.Manager's per-session operations
// key on.
func (p *project) resolveSessionID(name string) (string, error) {
	sess, err := p.db.GetSessionByName(p.repoPath, name)
	if err != nil {
		return "", schalterr.Wrap(schalterr.Internal, "look up session by name", err)
	}
	if sess == nil {
		return "", schalterr.New(schalterr.NotFound, "session not found: "+name)
	}
	return sess.ID, nil
}

func toSessionInfo(s *store.Session) proto.SessionInfo {
	info := proto.SessionInfo{
		ID:            s.ID,
		Name:          s.Name,
		RepoPath:      s.RepoPath,
		Branch:        s.Branch,
		ParentBranch:  s.ParentBranch,
		WorktreePath:  s.WorktreePath,
		Status:        string(s.Status),
		SessionState:  string(s.SessionState),
		ReadyToMerge:  s.ReadyToMerge,
		ResumeAllowed: s.ResumeAllowed,
		CreatedAt:     s.CreatedAt.Unix(),
		UpdatedAt:     s.UpdatedAt.Unix(),
	}
	if s.DisplayName.Valid {
		info.DisplayName = s.DisplayName.String
	}
	if s.LastActivity.Valid {
		info.LastActivity = s.LastActivity.Time.Unix()
	}
	if s.SessionState == store.StateRunning || s.SessionState == store.StateReviewed {
		info.Missing = sessionWorktreeMissing(s)
	}
	return info
}

// sessionWorktreeMissing reports whether a running/reviewed session's
// worktree directory and branch metadata are no longer on disk — e.g. the
// checkout was removed outside schaltwerk. Surfaced on the wire as Missing
// so the UI can flag it rather than presenting a dead session as live.
func sessionWorktreeMissing(s *store.Session) bool {
	if s.WorktreePath == "" || s.Branch == "" {
		return true
	}
	if _, err := os.Stat(s.WorktreePath); err != nil {
		return true
	}
	if _, err := os.Stat(s.WorktreePath + "/.git"); err != nil {
		return true
	}
	return false
}

func (d *Daemon) dispatchSession(conn net.Conn, req proto.Request) {
	if req.RepoPath == "" {
		respond(conn, proto.Response{OK: false, Error: "repo_path required"})
		return
	}
	p, err := d.projectFor(req.RepoPath)
	if err != nil {
		respond(conn, errResponse(err))
		return
	}

	switch req.Type {
	case proto.ReqCreateSpec:
		sess, err := p.sessions.CreateSpec(req.Name, req.Content)
		if err != nil {
			respond(conn, errResponse(err))
			return
		}
		info := toSessionInfo(sess)
		respond(conn, proto.Response{OK: true, Session: &info})

	case proto.ReqStart:
		opts := session.StartOptions{
			Name:            req.Name,
			ParentBranch:    req.ParentBranch,
			AgentKind:       req.AgentKind,
			SkipPermissions: req.SkipPermissions,
		}
		sess, err := p.sessions.Start(opts, p.cfg, p.repoPath)
		if err != nil {
			respond(conn, errResponse(err))
			return
		}
		info := toSessionInfo(sess)
		respond(conn, proto.Response{OK: true, Session: &info})

	case proto.ReqList:
		sessions, err := p.sessions.List()
		if err != nil {
			respond(conn, errResponse(err))
			return
		}
		infos := make([]proto.SessionInfo, 0, len(sessions))
		for _, s := range sessions {
			infos = append(infos, toSessionInfo(s))
		}
		respond(conn, proto.Response{OK: true, Sessions: infos})

	case proto.ReqGet:
		id, err := p.resolveSessionID(req.Name)
		if err != nil {
			respond(conn, errResponse(err))
			return
		}
		sess, err := p.sessions.Get(id)
		if err != nil {
			respond(conn, errResponse(err))
			return
		}
		info := toSessionInfo(sess)
		respond(conn, proto.Response{OK: true, Session: &info})

	case proto.ReqMarkReviewed:
		id, err := p.resolveSessionID(req.Name)
		if err != nil {
			respond(conn, errResponse(err))
			return
		}
		if err := p.sessions.MarkReviewed(id, req.Content != "", req.Content); err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true})

	case proto.ReqConvertToSpec:
		// The session manager has no operation that turns a started
		// session back into a spec, so this request is rejected
		// explicitly rather than silently treated as a no-op.
		respond(conn, proto.Response{OK: false, Error: "convert_to_spec is not supported: no reverse transition from running to spec"})

	case proto.ReqCancel:
		id, err := p.resolveSessionID(req.Name)
		if err != nil {
			respond(conn, errResponse(err))
			return
		}
		if err := p.sessions.Cancel(id, p.repoPath); err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true})

	case proto.ReqRename:
		id, err := p.resolveSessionID(req.Name)
		if err != nil {
			respond(conn, errResponse(err))
			return
		}
		if err := p.sessions.Rename(id, req.NewName); err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true})

	case proto.ReqUpdateSpecContent:
		id, err := p.resolveSessionID(req.Name)
		if err != nil {
			respond(conn, errResponse(err))
			return
		}
		if err := p.sessions.UpdateSpecContent(id, req.Content); err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true})

	case proto.ReqAppendSpecContent:
		id, err := p.resolveSessionID(req.Name)
		if err != nil {
			respond(conn, errResponse(err))
			return
		}
		if err := p.sessions.AppendSpecContent(id, req.Content); err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true})
	}
}
