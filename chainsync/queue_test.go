package chainsync

import (
	"testing"
	"time"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := NewBlockQueue()
	q.Push(Block{Slot: 1})
	q.Push(Block{Slot: 2})
	q.Push(Block{Slot: 3})

	for _, want := range []uint64{1, 2, 3} {
		b, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop: expected ok=true")
		}
		if b.Slot != want {
			t.Fatalf("got slot %d, want %d", b.Slot, want)
		}
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewBlockQueue()
	done := make(chan Block, 1)
	go func() {
		b, ok := q.Pop()
		if ok {
			done <- b
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(Block{Slot: 42})

	select {
	case b := <-done:
		if b.Slot != 42 {
			t.Fatalf("got slot %d, want 42", b.Slot)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestQueueCloseWakesConsumer(t *testing.T) {
	q := NewBlockQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected Pop to return ok=false after Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not return after Close")
	}
}

func TestQueueLen(t *testing.T) {
	q := NewBlockQueue()
	if q.Len() != 0 {
		t.Fatalf("got len %d, want 0", q.Len())
	}
	q.Push(Block{Slot: 1})
	q.Push(Block{Slot: 2})
	if q.Len() != 2 {
		t.Fatalf("got len %d, want 2", q.Len())
	}
	q.Pop()
	if q.Len() != 1 {
		t.Fatalf("got len %d, want 1", q.Len())
	}
}
