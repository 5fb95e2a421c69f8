// Package daemon implements the schaltwerkd background daemon.
//
// The daemon listens on a Unix domain socket and handles requests from
// schaltwerkctl clients. Each request is a single newline-terminated JSON
// object; the daemon writes a single newline-terminated JSON response and
// then closes the connection — except terminal_attach, which switches the
// connection into a bidirectional framed streaming mode (see
// handlers_terminal.go and internal/proto for the wire format). This
// generalizes grove's daemon.go dispatch shape (one handleX method per
// request type) from container-instance supervision to session/terminal/
// diff/git commands.
package daemon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/schaltwerk/schaltwerkd/internal/config"
	"github.com/schaltwerk/schaltwerkd/internal/logging"
	"github.com/schaltwerk/schaltwerkd/internal/proto"
)

// Daemon is the central supervisor. It owns one project per distinct
// repo_path seen in a request.
type Daemon struct {
	appCfg *config.AppConfig

	mu       sync.Mutex
	projects map[string]*project

	stopPoll chan struct{}
}

// New constructs a Daemon. appCfg is the already-loaded global settings
// (§3.6); a nil appCfg is replaced by a zero AppConfig, to which no
// defaults are applied.
func New(appCfg *config.AppConfig) *Daemon {
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}
	return &Daemon{
		appCfg:   appCfg,
		projects: make(map[string]*project),
		stopPoll: make(chan struct{}),
	}
}

// projectFor returns the project for repoPath, loading it on first use.
func (d *Daemon) projectFor(repoPath string) (*project, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.projects[repoPath]; ok {
		return p, nil
	}
	p, err := newProject(repoPath, d.appCfg)
	if err != nil {
		return nil, err
	}
	d.projects[repoPath] = p
	return p, nil
}

// snapshotProjects returns every loaded project, for the activity poller.
func (d *Daemon) snapshotProjects() []*project {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*project, 0, len(d.projects))
	for _, p := range d.projects {
		out = append(out, p)
	}
	return out
}

// Run starts the Unix socket listener, the 60s activity poller, and blocks
// until the listener is closed.
func (d *Daemon) Run(socketPath string) error {
	os.Remove(socketPath)

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer l.Close()

	logging.Info("schaltwerkd listening", "socket", socketPath)

	go d.runActivityPoll(60 * time.Second)

	for {
		conn, err := l.Accept()
		if err != nil {
			close(d.stopPoll)
			return nil
		}
		go d.handleConn(conn)
	}
}

// Close releases every loaded project's database handle; used by tests
// and by schaltwerkd's SIGINT/SIGTERM handler.
func (d *Daemon) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.projects {
		p.close()
	}
}

func (d *Daemon) handleConn(conn net.Conn) {
	defer conn.Close()

	var req proto.Request
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		return
	}
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		respond(conn, proto.Response{OK: false, Error: "bad request: " + err.Error()})
		return
	}

	switch req.Type {
	case proto.ReqPing:
		respond(conn, proto.Response{OK: true})

	case proto.ReqCreateSpec, proto.ReqStart, proto.ReqList, proto.ReqGet,
		proto.ReqMarkReviewed, proto.ReqConvertToSpec, proto.ReqCancel,
		proto.ReqRename, proto.ReqUpdateSpecContent, proto.ReqAppendSpecContent:
		d.dispatchSession(conn, req)

	case proto.ReqTerminalCreate, proto.ReqTerminalWrite, proto.ReqTerminalWriteImmed,
		proto.ReqTerminalPasteAndSubmit, proto.ReqTerminalResize, proto.ReqTerminalKill,
		proto.ReqTerminalAck, proto.ReqTerminalSnapshot, proto.ReqTerminalExists:
		d.dispatchTerminal(conn, req)

	case proto.ReqTerminalAttach:
		d.handleAttach(conn, req)

	case proto.ReqDiffUnified, proto.ReqDiffSplit, proto.ReqDiffChangedFiles, proto.ReqDiffStats:
		d.dispatchDiff(conn, req)

	case proto.ReqGitHasUncommitted, proto.ReqGitCommitAll, proto.ReqGitDiscardPath, proto.ReqGitResetToBase:
		d.dispatchGit(conn, req)

	default:
		respond(conn, proto.Response{OK: false, Error: "unknown request type: " + req.Type})
	}
}

func respond(conn net.Conn, r proto.Response) {
	data, err := json.Marshal(r)
	if err != nil {
		data = []byte(`{"ok":false,"error":"internal: marshal response"}`)
	}
	data = append(data, '\n')
	conn.Write(data)
}

// errResponse maps a schalterr.Error's Kind into a response; other errors
// fall back to a generic Internal-shaped kind string.
func errResponse(err error) proto.Response {
	return proto.Response{OK: false, Error: err.Error(), Kind: string(errKind(err))}
}
