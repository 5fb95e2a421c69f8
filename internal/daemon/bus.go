package daemon

import (
	"strings"
	"sync"

	"github.com/schaltwerk/schaltwerkd/internal/logging"
)

// Event is a single outbound notification, published best-effort per §4.4.
// TerminalID is set for every terminal-scoped event (output, closed,
// crashed, force-scroll, became-idle/active); a zero value means the event has no single-terminal subscriber and is only
// logged.
type Event struct {
	Name       string
	TerminalID string
	Seq        uint64
	Text       string
	ExitCode   int
	BufBytes   int
}

// sanitizeEventName replaces every character outside [A-Za-z0-9_\-/:] with
// '_', matching the terminal-id sanitization rule used to build
// terminal-output-<sanitized-id> event names.
func sanitizeEventName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '-', r == '/', r == ':':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// bus is the per-project event bus: a single outbound channel conceptually,
// specialized here into per-terminal subscriptions (the only consumer a
// Unix-socket request/response transport actually has — the attach stream)
// plus best-effort structured logging for every other named event. A
// publish never blocks the producer: subscriber channels are buffered and a
// full channel simply drops the event rather than stall the reader.
type bus struct {
	mu   sync.Mutex
	subs map[string][]chan Event
}

func newBus() *bus {
	return &bus{subs: make(map[string][]chan Event)}
}

// subscribe registers a buffered channel for every event addressed to
// terminalID. The returned cancel func removes it; it is safe to call more
// than once.
func (b *bus) subscribe(terminalID string) (<-chan Event, func()) {
	ch := make(chan Event, 256)
	b.mu.Lock()
	b.subs[terminalID] = append(b.subs[terminalID], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[terminalID]
		for i, c := range chans {
			if c == ch {
				b.subs[terminalID] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		if len(b.subs[terminalID]) == 0 {
			delete(b.subs, terminalID)
		}
		close(ch)
	}
	return ch, cancel
}

// publish fans an event out to every subscriber of its terminal id (if any)
// and always logs it at debug level, named per §4.4's
// terminal-output-<sanitized-id> convention.
func (b *bus) publish(evt Event) {
	eventName := evt.Name
	if evt.TerminalID != "" && evt.Name == "terminal-output" {
		eventName = "terminal-output-" + sanitizeEventName(evt.TerminalID)
	}
	logging.Debug("event", "name", eventName, "terminal", evt.TerminalID, "seq", evt.Seq)

	if evt.TerminalID == "" {
		return
	}
	b.mu.Lock()
	chans := append([]chan Event(nil), b.subs[evt.TerminalID]...)
	b.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- evt:
		default:
			logging.Warn("event subscriber lagging, dropping event", "terminal", evt.TerminalID, "name", eventName)
		}
	}
}

// sinkAdapter implements terminal.EventSink by publishing onto a bus, and
// named session-level events (activity, git-stats refresh, removal) that
// have no single terminal to address.
type sinkAdapter struct {
	bus *bus
}

func (s *sinkAdapter) EmitOutput(termID string, seq uint64, text string) {
	s.bus.publish(Event{Name: "terminal-output", TerminalID: termID, Seq: seq, Text: text})
}

func (s *sinkAdapter) EmitForceScroll(termID string) {
	s.bus.publish(Event{Name: "terminal-force-scroll", TerminalID: termID})
}

func (s *sinkAdapter) EmitTerminalClosed(termID string, exitErr error) {
	msg := ""
	if exitErr != nil {
		msg = exitErr.Error()
	}
	s.bus.publish(Event{Name: "terminal-closed", TerminalID: termID, Text: msg})
}

func (s *sinkAdapter) EmitAgentCrashed(termID string, exitCode int, lastSeq uint64, bufBytes int) {
	s.bus.publish(Event{Name: "agent-crashed", TerminalID: termID, Seq: lastSeq, ExitCode: exitCode, BufBytes: bufBytes})
}

func (s *sinkAdapter) EmitBecameIdle(termID string) {
	s.bus.publish(Event{Name: "terminal-became-idle", TerminalID: termID})
}

func (s *sinkAdapter) EmitBecameActive(termID string) {
	s.bus.publish(Event{Name: "terminal-became-active", TerminalID: termID})
}

func (s *sinkAdapter) emitNamed(name string) {
	s.bus.publish(Event{Name: name})
}
