package terminal

import "testing"

func TestTranscriptDropsOldestBytesOverLimit(t *testing.T) {
	tr := &transcript{}

	first := make([]byte, MaxTranscriptBytes-10)
	for i := range first {
		first[i] = 'a'
	}
	tr.append(first)

	second := make([]byte, 20)
	for i := range second {
		second[i] = 'b'
	}
	tr.append(second)

	snap := tr.snapshot(MaxTranscriptBytes)
	if len(snap) != MaxTranscriptBytes {
		t.Fatalf("expected transcript capped at %d bytes, got %d", MaxTranscriptBytes, len(snap))
	}
	for _, b := range snap[len(snap)-20:] {
		if b != 'b' {
			t.Fatalf("expected newest bytes retained at tail")
		}
	}
}

func TestTranscriptSnapshotLimit(t *testing.T) {
	tr := &transcript{}
	tr.append([]byte("0123456789"))

	snap := tr.snapshot(4)
	if string(snap) != "6789" {
		t.Fatalf("expected tail-limited snapshot %q, got %q", "6789", snap)
	}
}
