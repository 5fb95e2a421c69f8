// Package proto defines the IPC message types and attach-stream framing
// used between schaltwerkctl (client) and schaltwerkd (daemon) over a Unix
// domain socket.
//
// Normal commands use newline-delimited JSON: client sends one Request,
// daemon sends one Response, then the connection closes.
//
// The attach command is special: after the JSON handshake the connection
// enters a streaming mode where the server sends length-prefixed output
// frames (so seq numbers travel alongside each chunk) and the client sends
// framed control messages (data, resize, ack, detach).
package proto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Request type constants — the command surface named by the design.
const (
	ReqPing = "ping"

	ReqCreateSpec          = "create_spec"
	ReqStart               = "start"
	ReqList                = "list"
	ReqGet                 = "get"
	ReqMarkReviewed        = "mark_reviewed"
	ReqConvertToSpec       = "convert_to_spec"
	ReqCancel              = "cancel"
	ReqRename              = "rename"
	ReqUpdateSpecContent   = "update_spec_content"
	ReqAppendSpecContent   = "append_spec_content"

	ReqTerminalCreate        = "terminal_create"
	ReqTerminalWrite         = "terminal_write"
	ReqTerminalWriteImmed    = "terminal_write_immediate"
	ReqTerminalPasteAndSubmit = "terminal_paste_and_submit"
	ReqTerminalResize        = "terminal_resize"
	ReqTerminalKill          = "terminal_kill"
	ReqTerminalAck           = "terminal_ack"
	ReqTerminalSnapshot      = "terminal_snapshot"
	ReqTerminalExists        = "terminal_exists"
	ReqTerminalAttach        = "terminal_attach"

	ReqDiffUnified      = "diff_unified"
	ReqDiffSplit        = "diff_split"
	ReqDiffChangedFiles = "diff_changed_files"
	ReqDiffStats        = "diff_stats"

	ReqGitHasUncommitted = "git_has_uncommitted"
	ReqGitCommitAll      = "git_commit_all"
	ReqGitDiscardPath    = "git_discard_path"
	ReqGitResetToBase    = "git_reset_to_base"
)

// Request is the JSON payload sent from schaltwerkctl to schaltwerkd. Not
// every field applies to every request type; unused fields are omitted.
type Request struct {
	Type string `json:"type"`

	RepoPath string `json:"repo_path,omitempty"`
	Name     string `json:"name,omitempty"`
	NewName  string `json:"new_name,omitempty"`

	ParentBranch    string `json:"parent_branch,omitempty"`
	AgentKind       string `json:"agent_kind,omitempty"`
	SkipPermissions bool   `json:"skip_permissions,omitempty"`

	Content string `json:"content,omitempty"`

	TerminalID string `json:"terminal_id,omitempty"`
	Rows       int    `json:"rows,omitempty"`
	Cols       int    `json:"cols,omitempty"`
	Data       []byte `json:"data,omitempty"`
	Bracketed  bool   `json:"bracketed,omitempty"`
	FromSeq    uint64 `json:"from_seq,omitempty"`
	Bytes      int    `json:"bytes,omitempty"`

	OldContent string `json:"old_content,omitempty"`
	NewContent string `json:"new_content,omitempty"`
	FilePath   string `json:"file_path,omitempty"`

	RelPath string `json:"rel_path,omitempty"`
	Message string `json:"message,omitempty"`
	Base    string `json:"base,omitempty"`
}

// Response is the JSON payload returned by the daemon for all non-attach
// commands.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`

	Session  *SessionInfo  `json:"session,omitempty"`
	Sessions []SessionInfo `json:"sessions,omitempty"`

	TerminalID string `json:"terminal_id,omitempty"`
	Seq        uint64 `json:"seq,omitempty"`
	Snapshot   string `json:"snapshot,omitempty"` // base64
	Exists     bool   `json:"exists,omitempty"`

	DiffLines  []DiffLineJSON `json:"diff_lines,omitempty"`
	LeftLines  []DiffLineJSON `json:"left_lines,omitempty"`
	RightLines []DiffLineJSON `json:"right_lines,omitempty"`
	Additions  int            `json:"additions,omitempty"`
	Deletions  int            `json:"deletions,omitempty"`

	ChangedFiles []string `json:"changed_files,omitempty"`
	GitStats     *GitStatsJSON `json:"git_stats,omitempty"`

	HasUncommitted bool `json:"has_uncommitted,omitempty"`
}

// SessionInfo is a point-in-time snapshot of a session's metadata for the
// list/get responses.
type SessionInfo struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DisplayName     string `json:"display_name,omitempty"`
	RepoPath        string `json:"repo_path"`
	Branch          string `json:"branch"`
	ParentBranch    string `json:"parent_branch"`
	WorktreePath    string `json:"worktree_path"`
	Status          string `json:"status"`
	SessionState    string `json:"session_state"`
	ReadyToMerge    bool   `json:"ready_to_merge"`
	ResumeAllowed   bool   `json:"resume_allowed"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`
	LastActivity    int64  `json:"last_activity,omitempty"`
	Missing         bool   `json:"missing,omitempty"`
}

// GitStatsJSON mirrors store.GitStats for wire transport.
type GitStatsJSON struct {
	FilesChanged     int   `json:"files_changed"`
	LinesAdded       int   `json:"lines_added"`
	LinesRemoved     int   `json:"lines_removed"`
	HasUncommitted   bool  `json:"has_uncommitted"`
	CalculatedAt     int64 `json:"calculated_at"`
	LastDiffChangeTS int64 `json:"last_diff_change_ts,omitempty"`
}

// DiffLineJSON mirrors gitdiff.DiffLine for wire transport.
type DiffLineJSON struct {
	Content         string         `json:"content"`
	Type            string         `json:"type"`
	OldLineNumber   int            `json:"old_line_number,omitempty"`
	NewLineNumber   int            `json:"new_line_number,omitempty"`
	IsCollapsible   bool           `json:"is_collapsible,omitempty"`
	CollapsedCount  int            `json:"collapsed_count,omitempty"`
	CollapsedLines  []DiffLineJSON `json:"collapsed_lines,omitempty"`
}

// ─── Attach stream framing ──────────────────────────────────────────────
//
// After the JSON handshake for terminal_attach, the connection becomes
// asymmetric:
//
//   Server → Client : [1 byte type][4 bytes BE length][payload]
//     0x10  output  – payload is an 8-byte BE seq followed by decoded UTF-8 text
//     0x11  closed  – terminal exited; payload empty
//
//   Client → Server : [1 byte type][4 bytes BE length][payload]
//     0x00  data    – stdin bytes to write into the PTY
//     0x01  resize  – payload: 2-byte cols + 2-byte rows (big-endian uint16)
//     0x02  detach  – no payload; client wants to detach cleanly
//     0x03  ack     – payload: 4-byte BE byte count being acknowledged

const (
	AttachFrameData   byte = 0x00
	AttachFrameResize byte = 0x01
	AttachFrameDetach byte = 0x02
	AttachFrameAck    byte = 0x03

	AttachFrameOutput byte = 0x10
	AttachFrameClosed byte = 0x11
)

const maxFrameBytes = 1 << 20 // sanity cap: 1 MiB

// WriteFrame writes a single framed message to w.
func WriteFrame(w io.Writer, frameType byte, payload []byte) error {
	hdr := make([]byte, 5)
	hdr[0] = frameType
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(payload)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if len(payload) > 0 {
		_, err := w.Write(payload)
		return err
	}
	return nil
}

// ReadFrame reads a single framed message from r.
func ReadFrame(r io.Reader) (byte, []byte, error) {
	hdr := make([]byte, 5)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, nil, err
	}
	frameType := hdr[0]
	n := binary.BigEndian.Uint32(hdr[1:])
	if n > maxFrameBytes {
		return 0, nil, fmt.Errorf("attach frame too large: %d bytes", n)
	}
	if n == 0 {
		return frameType, nil, nil
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return frameType, payload, nil
}

// WriteOutputFrame writes a server→client output frame carrying seq + text.
func WriteOutputFrame(w io.Writer, seq uint64, text string) error {
	payload := make([]byte, 8+len(text))
	binary.BigEndian.PutUint64(payload[:8], seq)
	copy(payload[8:], text)
	return WriteFrame(w, AttachFrameOutput, payload)
}

// ReadOutputFrame decodes a payload written by WriteOutputFrame.
func ReadOutputFrame(payload []byte) (seq uint64, text string, err error) {
	if len(payload) < 8 {
		return 0, "", fmt.Errorf("output frame too short: %d bytes", len(payload))
	}
	seq = binary.BigEndian.Uint64(payload[:8])
	text = string(payload[8:])
	return seq, text, nil
}
