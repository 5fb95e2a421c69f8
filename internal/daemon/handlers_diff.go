package daemon

import (
	"net"

	"github.com/schaltwerk/schaltwerkd/internal/gitdiff"
	"github.com/schaltwerk/schaltwerkd/internal/proto"
)

func toDiffLineJSON(l gitdiff.DiffLine) proto.DiffLineJSON {
	out := proto.DiffLineJSON{
		Content:        l.Content,
		Type:           string(l.Type),
		OldLineNumber:  l.OldLineNumber,
		NewLineNumber:  l.NewLineNumber,
		IsCollapsible:  l.IsCollapsible,
		CollapsedCount: l.CollapsedCount,
	}
	if len(l.CollapsedLines) > 0 {
		out.CollapsedLines = make([]proto.DiffLineJSON, len(l.CollapsedLines))
		for i, c := range l.CollapsedLines {
			out.CollapsedLines[i] = toDiffLineJSON(c)
		}
	}
	return out
}

func toDiffLinesJSON(lines []gitdiff.DiffLine) []proto.DiffLineJSON {
	out := make([]proto.DiffLineJSON, len(lines))
	for i, l := range lines {
		out[i] = toDiffLineJSON(l)
	}
	return out
}

func (d *Daemon) dispatchDiff(conn net.Conn, req proto.Request) {
	switch req.Type {
	case proto.ReqDiffUnified:
		lines := gitdiff.AddCollapsibleSections(gitdiff.ComputeUnifiedDiff(req.OldContent, req.NewContent))
		stats := gitdiff.CalculateStats(lines)
		respond(conn, proto.Response{
			OK: true, DiffLines: toDiffLinesJSON(lines),
			Additions: stats.Additions, Deletions: stats.Deletions,
		})

	case proto.ReqDiffSplit:
		split := gitdiff.ComputeSplitDiff(req.OldContent, req.NewContent)
		stats := gitdiff.CalculateSplitStats(split)
		respond(conn, proto.Response{
			OK: true, LeftLines: toDiffLinesJSON(split.LeftLines), RightLines: toDiffLinesJSON(split.RightLines),
			Additions: stats.Additions, Deletions: stats.Deletions,
		})

	case proto.ReqDiffChangedFiles:
		if req.RepoPath == "" {
			respond(conn, proto.Response{OK: false, Error: "repo_path required"})
			return
		}
		stats, err := gitdiff.FastStats(req.RepoPath, req.Base)
		if err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true, ChangedFiles: stats.ChangedFiles})

	case proto.ReqDiffStats:
		if req.RepoPath == "" {
			respond(conn, proto.Response{OK: false, Error: "repo_path required"})
			return
		}
		stats, err := gitdiff.FastStats(req.RepoPath, req.Base)
		if err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true, GitStats: &proto.GitStatsJSON{
			FilesChanged:     stats.FilesChanged,
			LinesAdded:       stats.LinesAdded,
			LinesRemoved:     stats.LinesRemoved,
			HasUncommitted:   stats.HasUncommitted,
			LastDiffChangeTS: stats.LastDiffChangeTS.Unix(),
		}})
	}
}
