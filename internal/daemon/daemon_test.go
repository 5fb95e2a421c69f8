package daemon

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/schaltwerk/schaltwerkd/internal/config"
	"github.com/schaltwerk/schaltwerkd/internal/proto"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init")
	run("config", "user.name", "Test User")
	run("config", "user.email", "test@example.com")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi\n"), 0o644))
	run("add", "-A")
	run("commit", "-m", "init")
	run("branch", "-M", "main")
	return dir
}

func startTestDaemon(t *testing.T) string {
	t.Helper()
	d := New(&config.AppConfig{})
	t.Cleanup(d.Close)

	sockPath := filepath.Join(t.TempDir(), "schaltwerkd.sock")
	ready := make(chan struct{})
	go func() {
		l, err := net.Listen("unix", sockPath)
		require.NoError(t, err)
		close(ready)
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go d.handleConn(conn)
		}
	}()
	<-ready
	return sockPath
}

func doRequest(t *testing.T, sockPath string, req proto.Request) proto.Response {
	t.Helper()
	conn, err := net.DialTimeout("unix", sockPath, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	data, err := json.Marshal(req)
	require.NoError(t, err)
	data = append(data, '\n')
	_, err = conn.Write(data)
	require.NoError(t, err)

	scanner := bufio.NewScanner(conn)
	require.True(t, scanner.Scan())
	var resp proto.Response
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	return resp
}

func TestDaemonPing(t *testing.T) {
	sock := startTestDaemon(t)
	resp := doRequest(t, sock, proto.Request{Type: proto.ReqPing})
	require.True(t, resp.OK)
}

func TestDaemonCreateSpecStartCancel(t *testing.T) {
	sock := startTestDaemon(t)
	repoPath := initTestRepo(t)

	createResp := doRequest(t, sock, proto.Request{
		Type: proto.ReqCreateSpec, RepoPath: repoPath, Name: "feat-x", Content: "write a test",
	})
	require.True(t, createResp.OK, createResp.Error)
	require.NotNil(t, createResp.Session)
	require.Equal(t, "spec", createResp.Session.SessionState)

	startResp := doRequest(t, sock, proto.Request{
		Type: proto.ReqStart, RepoPath: repoPath, Name: "feat-x", ParentBranch: "main",
	})
	require.True(t, startResp.OK, startResp.Error)
	require.Equal(t, "running", startResp.Session.SessionState)
	require.DirExists(t, startResp.Session.WorktreePath)

	listResp := doRequest(t, sock, proto.Request{Type: proto.ReqList, RepoPath: repoPath})
	require.True(t, listResp.OK)
	require.Len(t, listResp.Sessions, 1)

	cancelResp := doRequest(t, sock, proto.Request{Type: proto.ReqCancel, RepoPath: repoPath, Name: "feat-x"})
	require.True(t, cancelResp.OK, cancelResp.Error)
	require.NoDirExists(t, startResp.Session.WorktreePath)
}

func TestDaemonDiffUnified(t *testing.T) {
	sock := startTestDaemon(t)
	resp := doRequest(t, sock, proto.Request{
		Type:       proto.ReqDiffUnified,
		OldContent: "line 1\nline 2\nline 3",
		NewContent: "line 1\nline 2 modified\nline 3",
	})
	require.True(t, resp.OK)
	require.Equal(t, 1, resp.Additions)
	require.Equal(t, 1, resp.Deletions)
	require.Len(t, resp.DiffLines, 4)
}

func TestDaemonUnknownRequestType(t *testing.T) {
	sock := startTestDaemon(t)
	resp := doRequest(t, sock, proto.Request{Type: "bogus"})
	require.False(t, resp.OK)
}
