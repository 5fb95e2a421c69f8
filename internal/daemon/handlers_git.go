package daemon

import (
	"net"

	"github.com/schaltwerk/schaltwerkd/internal/gitops"
	"github.com/schaltwerk/schaltwerkd/internal/proto"
)

// dispatchGit handles the four git primitives (§4.2.7), each addressed at
// a session's worktree directly via repo_path.
func (d *Daemon) dispatchGit(conn net.Conn, req proto.Request) {
	if req.RepoPath == "" {
		respond(conn, proto.Response{OK: false, Error: "repo_path required"})
		return
	}
	repo, err := gitops.Open(req.RepoPath)
	if err != nil {
		respond(conn, errResponse(err))
		return
	}

	switch req.Type {
	case proto.ReqGitHasUncommitted:
		dirty, err := repo.HasUncommittedChanges()
		if err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true, HasUncommitted: dirty})

	case proto.ReqGitCommitAll:
		if err := repo.CommitAll(req.Message); err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true})

	case proto.ReqGitDiscardPath:
		if err := repo.DiscardPath(req.RelPath); err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true})

	case proto.ReqGitResetToBase:
		if err := repo.ResetWorktreeToBase(req.Base); err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true})
	}
}
