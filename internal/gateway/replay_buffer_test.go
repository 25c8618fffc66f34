package gateway

import (
	"fmt"
	"testing"
)

func fillBuffer(rb *ReplayBuffer, from, to int64) {
	for seq := from; seq <= to; seq++ {
		rb.Push(seq, []byte(fmt.Sprintf(`{"seq":%d}`, seq)))
	}
}

func TestReplayBuffer_SinceZeroReturnsAll(t *testing.T) {
	rb := NewReplayBuffer(10)
	fillBuffer(rb, 1, 5)

	got := rb.Since(0)
	if len(got) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(got))
	}
	for i, e := range got {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d: expected seq %d, got %d", i, i+1, e.Seq)
		}
	}
}

func TestReplayBuffer_SinceFiltersOldEntries(t *testing.T) {
	rb := NewReplayBuffer(10)
	fillBuffer(rb, 1, 8)

	got := rb.Since(5)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries after seq 5, got %d", len(got))
	}
	if got[0].Seq != 6 || got[2].Seq != 8 {
		t.Errorf("unexpected range: first=%d last=%d", got[0].Seq, got[2].Seq)
	}
}

func TestReplayBuffer_WrapsAndKeepsNewest(t *testing.T) {
	rb := NewReplayBuffer(5)
	fillBuffer(rb, 1, 12)

	if rb.Len() != 5 {
		t.Fatalf("expected len 5 after wrap, got %d", rb.Len())
	}
	got := rb.Since(0)
	if len(got) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(got))
	}
	// Oldest first: 8..12 survive.
	for i, e := range got {
		if e.Seq != int64(8+i) {
			t.Errorf("entry %d: expected seq %d, got %d", i, 8+i, e.Seq)
		}
	}
}

func TestReplayBuffer_DataIsCopied(t *testing.T) {
	rb := NewReplayBuffer(4)
	payload := []byte(`{"seq":1}`)
	rb.Push(1, payload)
	payload[0] = 'X' // caller reuses the slice

	got := rb.Since(0)
	if string(got[0].Data) != `{"seq":1}` {
		t.Errorf("buffer aliased the caller's slice: %s", got[0].Data)
	}
}

func TestReplayBuffer_SinceBeyondNewestIsEmpty(t *testing.T) {
	rb := NewReplayBuffer(4)
	fillBuffer(rb, 1, 3)
	if got := rb.Since(99); len(got) != 0 {
		t.Errorf("expected empty replay, got %d entries", len(got))
	}
}
