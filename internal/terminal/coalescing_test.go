package terminal

import (
	"sync"
	"testing"
)

type fakeSink struct {
	mu      sync.Mutex
	outputs []string
	seqs    []uint64
}

func (f *fakeSink) EmitOutput(termID string, seq uint64, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = append(f.outputs, text)
	f.seqs = append(f.seqs, seq)
}
func (f *fakeSink) EmitForceScroll(termID string)                                 {}
func (f *fakeSink) EmitTerminalClosed(termID string, exitErr error)                {}
func (f *fakeSink) EmitAgentCrashed(termID string, exitCode int, lastSeq uint64, bufBytes int) {}
func (f *fakeSink) EmitBecameIdle(termID string)                                  {}
func (f *fakeSink) EmitBecameActive(termID string)                                {}

func (f *fakeSink) joined() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := ""
	for _, s := range f.outputs {
		out += s
	}
	return out
}

func TestCoalescerHoldsBackSplitANSISequence(t *testing.T) {
	sink := &fakeSink{}
	c := newCoalescer("t1", sink)

	// "\x1b[31m" split across two feeds: first half has no terminator byte.
	c.feed(1, []byte("hello \x1b[3"))
	if sink.joined() != "hello " {
		t.Fatalf("expected only the safe prefix emitted yet, got %q", sink.joined())
	}

	c.feed(2, []byte("1mworld"))
	c.Flush()
	got := sink.joined()
	want := "hello \x1b[31mworld"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCoalescerHoldsBackSplitUTF8Rune(t *testing.T) {
	sink := &fakeSink{}
	c := newCoalescer("t1", sink)

	full := []byte("caf\xc3\xa9") // "café"
	c.feed(1, full[:len(full)-1]) // split inside the 2-byte é
	if sink.joined() != "caf" {
		t.Fatalf("expected only \"caf\" emitted yet (incomplete rune held back), got %q", sink.joined())
	}

	c.feed(2, full[len(full)-1:])
	c.Flush()
	if got := sink.joined(); got != "café" {
		t.Fatalf("got %q want %q", got, "café")
	}
}

func TestCoalescerEmitsSmallSafeWritesImmediately(t *testing.T) {
	sink := &fakeSink{}
	c := newCoalescer("t1", sink)

	c.feed(1, []byte("a"))
	if got := sink.joined(); got != "a" {
		t.Fatalf("expected safe byte emitted on the first feed, got %q", got)
	}
	c.feed(2, []byte("b"))
	if got := sink.joined(); got != "ab" {
		t.Fatalf("got %q want %q", got, "ab")
	}
}

func TestCoalescerEmitsLargeSafeWritesImmediately(t *testing.T) {
	sink := &fakeSink{}
	c := newCoalescer("t1", sink)

	big := make([]byte, 16*1024)
	for i := range big {
		big[i] = 'x'
	}
	c.feed(1, big)
	if len(sink.joined()) != len(big) {
		t.Fatalf("expected all safe bytes emitted on a single feed, got %d bytes", len(sink.joined()))
	}
}

func TestIncompleteANSISuffixLen(t *testing.T) {
	complete := []byte("\x1b[31m")
	if n := incompleteANSISuffixLen(complete); n != 0 {
		t.Fatalf("expected complete sequence to report 0, got %d", n)
	}
	incomplete := []byte("\x1b[3")
	if n := incompleteANSISuffixLen(incomplete); n != len(incomplete) {
		t.Fatalf("expected incomplete sequence length %d, got %d", len(incomplete), n)
	}
}

func TestIncompleteUTF8SuffixLen(t *testing.T) {
	full := []byte("caf\xc3\xa9")
	if n := incompleteUTF8SuffixLen(full); n != 0 {
		t.Fatalf("expected complete string to report 0, got %d", n)
	}
	truncated := full[:len(full)-1]
	if n := incompleteUTF8SuffixLen(truncated); n != 1 {
		t.Fatalf("expected 1 trailing incomplete byte, got %d", n)
	}
}
