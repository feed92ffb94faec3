package egress

import (
	"testing"

	"github.com/birddigital/voicebridge/internal/session"
)

func chunk(ts int64) session.TtsChunk {
	return session.TtsChunk{SessionID: "s1", Encoding: "pcm_s16le", SampleRateHz: 16000, TimestampMs: ts}
}

func TestEnqueueWithinBoundDoesNotDrop(t *testing.T) {
	s := NewStore(4)
	for i := int64(0); i < 4; i++ {
		res := s.Enqueue("s1", chunk(i))
		if res.DroppedOldest {
			t.Fatalf("unexpected drop at i=%d", i)
		}
	}
	if s.Size("s1") != 4 {
		t.Fatalf("expected size 4, got %d", s.Size("s1"))
	}
}

func TestEnqueueOverflowDropsOldestAndKeepsFIFOOrder(t *testing.T) {
	s := NewStore(3)
	for i := int64(0); i < 5; i++ {
		s.Enqueue("s1", chunk(i))
	}
	if s.Size("s1") != 3 {
		t.Fatalf("expected bound 3, got %d", s.Size("s1"))
	}

	// Remaining chunks should be the last 3 enqueued (timestamps 2,3,4), in FIFO order.
	want := []int64{2, 3, 4}
	for _, w := range want {
		c, ok := s.Dequeue("s1")
		if !ok {
			t.Fatalf("expected a chunk, queue empty early")
		}
		if c.TimestampMs != w {
			t.Fatalf("expected timestamp %d, got %d", w, c.TimestampMs)
		}
	}
}

func TestDequeueEmptyQueueRemovesMapEntry(t *testing.T) {
	s := NewStore(4)
	s.Enqueue("s1", chunk(1))
	s.Dequeue("s1")

	if _, ok := s.Dequeue("s1"); ok {
		t.Fatal("expected empty queue after single dequeue")
	}
	if len(s.queues) != 0 {
		t.Fatalf("expected empty-queue GC, got %d entries", len(s.queues))
	}
}

func TestDequeueUnknownSessionReturnsFalse(t *testing.T) {
	s := NewStore(4)
	if _, ok := s.Dequeue("missing"); ok {
		t.Fatal("expected ok=false for unknown session")
	}
}

func TestClearDropsQueuedChunks(t *testing.T) {
	s := NewStore(4)
	s.Enqueue("s1", chunk(1))
	s.Enqueue("s1", chunk(2))
	s.Clear("s1")
	if s.Size("s1") != 0 {
		t.Fatalf("expected size 0 after clear, got %d", s.Size("s1"))
	}
}
