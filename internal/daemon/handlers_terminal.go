package daemon

import (
	"encoding/binary"
	"net"

	"github.com/schaltwerk/schaltwerkd/internal/proto"
	"github.com/schaltwerk/schaltwerkd/internal/terminal"
)

func (d *Daemon) dispatchTerminal(conn net.Conn, req proto.Request) {
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
	case proto.ReqTerminalCreate:
		cwd := p.repoPath
		if req.Name != "" {
			id, err := p.resolveSessionID(req.Name)
			if err == nil {
				if sess, err := p.sessions.Get(id); err == nil && sess != nil && sess.WorktreePath != "" {
					cwd = sess.WorktreePath
				}
			}
		}
		err := p.terminals.Spawn(terminal.SpawnOptions{
			ID:   req.TerminalID,
			Cwd:  cwd,
			Rows: uint16(req.Rows),
			Cols: uint16(req.Cols),
		})
		if err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true, TerminalID: req.TerminalID})

	case proto.ReqTerminalWrite:
		if err := p.terminals.Write(req.TerminalID, req.Data); err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true})

	case proto.ReqTerminalWriteImmed:
		if err := p.terminals.WriteImmediate(req.TerminalID, req.Data); err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true})

	case proto.ReqTerminalPasteAndSubmit:
		if err := p.terminals.PasteAndSubmit(req.TerminalID, req.Data, req.Bracketed); err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true})

	case proto.ReqTerminalResize:
		if err := p.terminals.Resize(req.TerminalID, uint16(req.Rows), uint16(req.Cols)); err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true})

	case proto.ReqTerminalKill:
		if err := p.terminals.Kill(req.TerminalID); err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true})

	case proto.ReqTerminalAck:
		if err := p.terminals.Ack(req.TerminalID, req.Bytes); err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true})

	case proto.ReqTerminalSnapshot:
		seq, b64, err := p.terminals.Snapshot(req.TerminalID)
		if err != nil {
			respond(conn, errResponse(err))
			return
		}
		respond(conn, proto.Response{OK: true, TerminalID: req.TerminalID, Seq: seq, Snapshot: b64})

	case proto.ReqTerminalExists:
		respond(conn, proto.Response{OK: true, TerminalID: req.TerminalID, Exists: p.terminals.Exists(req.TerminalID)})
	}
}

// handleAttach upgrades the connection to the bidirectional frame protocol
// (internal/proto) once the JSON handshake succeeds, mirroring grove's
// Instance.Attach: subscribe to the bus for this terminal id, replay the
// transcript snapshot, then pump output frames to the client while reading
// control frames (data/resize/ack/detach) from it until either side closes.
func (d *Daemon) handleAttach(conn net.Conn, req proto.Request) {
	if req.RepoPath == "" {
		respond(conn, proto.Response{OK: false, Error: "repo_path required"})
		return
	}
	p, err := d.projectFor(req.RepoPath)
	if err != nil {
		respond(conn, errResponse(err))
		return
	}
	if !p.terminals.Exists(req.TerminalID) {
		respond(conn, proto.Response{OK: false, Error: "terminal not found: " + req.TerminalID})
		return
	}

	seq, snapshotB64, err := p.terminals.Snapshot(req.TerminalID)
	if err != nil {
		respond(conn, errResponse(err))
		return
	}

	// The handshake response itself carries the replay snapshot
	// (base64-encoded raw bytes, per §6.3); the framed stream that follows
	// carries only new output from here on.
	respond(conn, proto.Response{OK: true, TerminalID: req.TerminalID, Seq: seq, Snapshot: snapshotB64})

	events, cancel := p.bus.subscribe(req.TerminalID)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			frameType, payload, err := proto.ReadFrame(conn)
			if err != nil {
				return
			}
			switch frameType {
			case proto.AttachFrameData:
				_ = p.terminals.Write(req.TerminalID, payload)
			case proto.AttachFrameResize:
				if len(payload) == 4 {
					cols := binary.BigEndian.Uint16(payload[0:2])
					rows := binary.BigEndian.Uint16(payload[2:4])
					_ = p.terminals.Resize(req.TerminalID, rows, cols)
				}
			case proto.AttachFrameAck:
				if len(payload) == 4 {
					_ = p.terminals.Ack(req.TerminalID, int(binary.BigEndian.Uint32(payload)))
				}
			case proto.AttachFrameDetach:
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			switch evt.Name {
			case "terminal-output":
				if err := proto.WriteOutputFrame(conn, evt.Seq, evt.Text); err != nil {
					return
				}
			case "terminal-closed":
				_ = proto.WriteFrame(conn, proto.AttachFrameClosed, nil)
				return
			}
		case <-done:
			return
		}
	}
}
