// schaltwerkctl is the CLI client for the schaltwerkd daemon.
//
// Usage:
//
//	schaltwerkctl create-spec <repo> <name> <content>  – create a spec session
//	schaltwerkctl start <repo> <name> [--parent <branch>] [--agent <kind>]
//	schaltwerkctl list <repo>                          – list all sessions
//	schaltwerkctl get <repo> <name>                    – show one session
//	schaltwerkctl mark-reviewed <repo> <name>
//	schaltwerkctl cancel <repo> <name>
//	schaltwerkctl rename <repo> <name> <new-name>
//	schaltwerkctl attach <repo> <terminal-id>          – attach to a terminal PTY
//	schaltwerkctl diff <repo> <base>                   – print changed-file stats
//
// schaltwerkctl starts the daemon automatically if it is not already running.
// Detach from an attached terminal with Ctrl-] (0x1D).
package main

import (
	"bufio"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/schaltwerk/schaltwerkd/internal/proto"
	"github.com/schaltwerk/schaltwerkd/internal/schalterr"
	"golang.org/x/term"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "create-spec":
		cmdCreateSpec()
	case "start":
		cmdStart()
	case "list":
		cmdList()
	case "get":
		cmdGet()
	case "mark-reviewed":
		cmdMarkReviewed()
	case "cancel":
		cmdCancel()
	case "rename":
		cmdRename()
	case "attach":
		cmdAttach()
	case "diff":
		cmdDiff()
	default:
		fmt.Fprintf(os.Stderr, "schaltwerkctl: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `schaltwerkctl – control AI coding agent sessions

  create-spec <repo> <name> <content>   Create a spec session
  start <repo> <name> [--parent b] [--agent k] [--skip-permissions]
                                         Start a session from a spec, or fresh
  list <repo>                           List all sessions
  get <repo> <name>                     Show one session
  mark-reviewed <repo> <name>           Mark a session ready to merge
  cancel <repo> <name>                  Cancel a session and remove its worktree
  rename <repo> <name> <new-name>       Rename a session
  attach <repo> <terminal-id>           Attach terminal to a session PTY (detach: Ctrl-])
  diff <repo> <base>                    Print changed-file stats against base`)
}

func cmdCreateSpec() {
	if len(os.Args) < 5 {
		fmt.Fprintln(os.Stderr, "usage: schaltwerkctl create-spec <repo> <name> <content>")
		os.Exit(1)
	}
	resp := mustRequest(proto.Request{
		Type: proto.ReqCreateSpec, RepoPath: os.Args[2], Name: os.Args[3], Content: os.Args[4],
	})
	fmt.Printf("created spec %q\n", resp.Session.Name)
}

func cmdStart() {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	parent := fs.String("parent", "", "parent branch to branch from")
	agent := fs.String("agent", "", "agent kind to launch")
	skipPerm := fs.Bool("skip-permissions", false, "launch the agent with permission prompts skipped")
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: schaltwerkctl start <repo> <name> [--parent b] [--agent k] [--skip-permissions]")
		os.Exit(1)
	}
	fs.Parse(os.Args[4:])

	resp := mustRequest(proto.Request{
		Type: proto.ReqStart, RepoPath: os.Args[2], Name: os.Args[3],
		ParentBranch: *parent, AgentKind: *agent, SkipPermissions: *skipPerm,
	})
	fmt.Printf("started %q\n", resp.Session.Name)
	fmt.Printf("worktree: %s\n", resp.Session.WorktreePath)
}

func cmdList() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: schaltwerkctl list <repo>")
		os.Exit(1)
	}
	resp := mustRequest(proto.Request{Type: proto.ReqList, RepoPath: os.Args[2]})

	if len(resp.Sessions) == 0 {
		fmt.Println("no sessions")
		return
	}
	fmt.Printf("%-20s  %-10s  %-30s  %s\n", "NAME", "STATE", "BRANCH", "WORKTREE")
	for _, s := range resp.Sessions {
		fmt.Printf("%-20s  %-10s  %-30s  %s\n", s.Name, s.SessionState, s.Branch, s.WorktreePath)
	}
}

func cmdGet() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: schaltwerkctl get <repo> <name>")
		os.Exit(1)
	}
	resp := mustRequest(proto.Request{Type: proto.ReqGet, RepoPath: os.Args[2], Name: os.Args[3]})
	data, _ := json.MarshalIndent(resp.Session, "", "  ")
	fmt.Println(string(data))
}

func cmdMarkReviewed() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: schaltwerkctl mark-reviewed <repo> <name>")
		os.Exit(1)
	}
	mustRequest(proto.Request{Type: proto.ReqMarkReviewed, RepoPath: os.Args[2], Name: os.Args[3]})
	fmt.Println("marked reviewed")
}

func cmdCancel() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: schaltwerkctl cancel <repo> <name>")
		os.Exit(1)
	}
	mustRequest(proto.Request{Type: proto.ReqCancel, RepoPath: os.Args[2], Name: os.Args[3]})
	fmt.Println("cancelled")
}

func cmdRename() {
	if len(os.Args) < 5 {
		fmt.Fprintln(os.Stderr, "usage: schaltwerkctl rename <repo> <name> <new-name>")
		os.Exit(1)
	}
	mustRequest(proto.Request{Type: proto.ReqRename, RepoPath: os.Args[2], Name: os.Args[3], NewName: os.Args[4]})
	fmt.Println("renamed")
}

func cmdDiff() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: schaltwerkctl diff <repo> <base>")
		os.Exit(1)
	}
	resp := mustRequest(proto.Request{Type: proto.ReqDiffStats, RepoPath: os.Args[2], Base: os.Args[3]})
	gs := resp.GitStats
	fmt.Printf("files changed: %d  +%d  -%d  uncommitted: %v\n",
		gs.FilesChanged, gs.LinesAdded, gs.LinesRemoved, gs.HasUncommitted)
}

func cmdAttach() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: schaltwerkctl attach <repo> <terminal-id>")
		os.Exit(1)
	}
	repoPath := os.Args[2]
	terminalID := os.Args[3]

	socketPath := daemonSocket()
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schaltwerkctl: cannot connect to daemon: %v\n", err)
		os.Exit(1)
	}
	// Note: conn is NOT deferred-closed here; the attach loop owns its lifetime.

	if err := writeRequest(conn, proto.Request{
		Type: proto.ReqTerminalAttach, RepoPath: repoPath, TerminalID: terminalID,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "schaltwerkctl: %v\n", err)
		os.Exit(1)
	}

	resp, err := readResponse(conn)
	if err != nil || !resp.OK {
		msg := "attach failed"
		if err != nil {
			msg = err.Error()
		} else if resp.Error != "" {
			msg = resp.Error
		}
		fmt.Fprintf(os.Stderr, "schaltwerkctl: %s\n", msg)
		conn.Close()
		os.Exit(exitCodeForResp(resp, err))
	}

	// ── Attach session ──────────────────────────────────────────────────
	//
	// Terminal is put into raw mode so all keystrokes go directly to the
	// agent. Ctrl-] (0x1D) is intercepted as the detach escape.

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schaltwerkctl: cannot set raw mode: %v\n", err)
		conn.Close()
		os.Exit(1)
	}
	defer term.Restore(fd, oldState)

	fmt.Fprintf(os.Stdout, "\r\n[schaltwerkctl] attached to %s  (detach: Ctrl-])\r\n", terminalID)

	done := make(chan struct{}, 1)
	signalDone := func() {
		select {
		case done <- struct{}{}:
		default:
		}
	}

	// Replay snapshot, then stream output frames to stdout.
	if raw, err := base64.StdEncoding.DecodeString(resp.Snapshot); err == nil {
		os.Stdout.Write(raw)
	}
	go func() {
		for {
			frameType, payload, err := proto.ReadFrame(conn)
			if err != nil {
				signalDone()
				return
			}
			switch frameType {
			case proto.AttachFrameOutput:
				_, text, err := proto.ReadOutputFrame(payload)
				if err == nil {
					os.Stdout.WriteString(text)
				}
			case proto.AttachFrameClosed:
				signalDone()
				return
			}
		}
	}()

	// Read stdin, watch for Ctrl-], frame and send to server.
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				for i := 0; i < n; i++ {
					if buf[i] == 0x1D {
						proto.WriteFrame(conn, proto.AttachFrameDetach, nil)
						signalDone()
						return
					}
				}
				proto.WriteFrame(conn, proto.AttachFrameData, buf[:n])
			}
			if err != nil {
				signalDone()
				return
			}
		}
	}()

	// Forward terminal resize via SIGWINCH.
	winchCh := make(chan os.Signal, 1)
	signal.Notify(winchCh, syscall.SIGWINCH)
	sendResize := func() {
		if cols, rows, err := term.GetSize(fd); err == nil {
			payload := make([]byte, 4)
			binary.BigEndian.PutUint16(payload[0:2], uint16(cols))
			binary.BigEndian.PutUint16(payload[2:4], uint16(rows))
			proto.WriteFrame(conn, proto.AttachFrameResize, payload)
		}
	}
	go func() {
		for range winchCh {
			sendResize()
		}
	}()
	sendResize()

	<-done
	signal.Stop(winchCh)
	conn.Close()
	fmt.Fprintf(os.Stdout, "\n[schaltwerkctl] detached from %s\n", terminalID)
}

// ─── Daemon connection helpers ──────────────────────────────────────────

// rootDir returns the schaltwerkd data directory.
// Precedence: SCHALTWERK_ROOT env var > ~/.schaltwerkd
func rootDir() string {
	if env := os.Getenv("SCHALTWERK_ROOT"); env != "" {
		abs, err := filepath.Abs(env)
		if err == nil {
			return abs
		}
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".schaltwerkd")
}

// daemonSocket returns the Unix socket path and ensures the daemon is running.
func daemonSocket() string {
	root := rootDir()
	sock := filepath.Join(root, "schaltwerkd.sock")
	ensureDaemon(root, sock)
	return sock
}

// ensureDaemon starts schaltwerkd in the background if the socket doesn't
// exist or is not responding to pings.
func ensureDaemon(root, socketPath string) {
	if pingDaemon(socketPath) {
		return
	}

	exe, _ := os.Executable()
	daemonBin := filepath.Join(filepath.Dir(exe), "schaltwerkd")
	if _, err := os.Stat(daemonBin); err != nil {
		daemonBin = "schaltwerkd"
	}

	cmd := exec.Command(daemonBin, "--root", root)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "schaltwerkctl: could not start daemon: %v\n", err)
		os.Exit(1)
	}

	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if pingDaemon(socketPath) {
			return
		}
	}

	fmt.Fprintln(os.Stderr, "schaltwerkctl: daemon did not start in time")
	os.Exit(1)
}

// pingDaemon returns true if the daemon is alive and responding.
func pingDaemon(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, 500*time.Millisecond)
	if err != nil {
		return false
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(500 * time.Millisecond))
	if err := writeRequest(conn, proto.Request{Type: proto.ReqPing}); err != nil {
		return false
	}
	resp, err := readResponse(conn)
	return err == nil && resp.OK
}

// mustRequest sends a request to the daemon and returns the response,
// exiting with the mapped exit code from §6.2 on any error.
func mustRequest(req proto.Request) proto.Response {
	socketPath := daemonSocket()
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schaltwerkctl: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := writeRequest(conn, req); err != nil {
		fmt.Fprintf(os.Stderr, "schaltwerkctl: %v\n", err)
		os.Exit(1)
	}

	resp, err := readResponse(conn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schaltwerkctl: %v\n", err)
		os.Exit(1)
	}
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "schaltwerkctl: %s\n", resp.Error)
		os.Exit(exitCodeForResp(resp, nil))
	}
	return resp
}

// exitCodeForResp maps a failed response's error kind to the CLI exit codes
// named in §6.2, falling back to 1 for a transport-level error or an
// unrecognized kind.
func exitCodeForResp(resp proto.Response, transportErr error) int {
	if transportErr != nil || resp.Kind == "" {
		return 1
	}
	return schalterr.ExitCodeForKind(schalterr.Kind(resp.Kind))
}

func writeRequest(conn net.Conn, req proto.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}

func readResponse(conn net.Conn) (proto.Response, error) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return proto.Response{}, err
		}
		return proto.Response{}, io.EOF
	}
	var resp proto.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return proto.Response{}, fmt.Errorf("bad response: %w", err)
	}
	return resp, nil
}
