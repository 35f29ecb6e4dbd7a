package signal

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestParseAndWait(t *testing.T) {
	q := NewQueue("spike")
	q.OnNotification("DONE:3")

	sig, ok := q.Wait(context.Background(), time.Second)
	if !ok {
		t.Fatal("Wait() timed out, want signal")
	}
	if sig.Source != "spike" || sig.Sequence != 3 || sig.Text != "DONE:3" {
		t.Errorf("signal = %+v", sig)
	}
	if sig.ReceivedAt.IsZero() {
		t.Error("ReceivedAt is zero")
	}
}

func TestFIFOOrder(t *testing.T) {
	q := NewQueue("spike")
	for i := 0; i < 5; i++ {
		q.OnNotification("DONE:" + string(rune('0'+i)))
	}
	for i := 0; i < 5; i++ {
		sig, ok := q.Wait(context.Background(), time.Second)
		if !ok {
			t.Fatalf("Wait() %d timed out", i)
		}
		if sig.Sequence != i {
			t.Errorf("signal %d sequence = %d", i, sig.Sequence)
		}
	}
}

func TestNonMatchingLinesDropped(t *testing.T) {
	q := NewQueue("spike")
	for _, line := range []string{
		"hello world",
		"DONE:",
		"DONE:abc",
		"DONE:-1",
		"",
	} {
		q.OnNotification(line)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after non-matching lines, want 0", q.Len())
	}
}

func TestEmbeddedTag(t *testing.T) {
	q := NewQueue("spike")
	q.OnNotification(">>> DONE:12  ")

	sig, ok := q.Wait(context.Background(), time.Second)
	if !ok || sig.Sequence != 12 {
		t.Errorf("Wait() = %+v, %v; want sequence 12", sig, ok)
	}
}

func TestWaitTimeout(t *testing.T) {
	q := NewQueue("spike")
	if _, ok := q.Wait(context.Background(), 20*time.Millisecond); ok {
		t.Error("Wait() = true on empty queue")
	}
}

func TestWaitContextCancel(t *testing.T) {
	q := NewQueue("spike")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := q.Wait(ctx, time.Minute); ok {
		t.Error("Wait() = true with cancelled context")
	}
}

func TestConcurrentWaitersGetDistinctSignals(t *testing.T) {
	q := NewQueue("spike")

	const n = 8
	var wg sync.WaitGroup
	results := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sig, ok := q.Wait(context.Background(), time.Second)
			if ok {
				results <- sig.Sequence
			}
		}()
	}

	for i := 0; i < n; i++ {
		q.OnNotification("DONE:" + string(rune('0'+i)))
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool)
	for seq := range results {
		if seen[seq] {
			t.Errorf("sequence %d delivered twice", seq)
		}
		seen[seq] = true
	}
	if len(seen) != n {
		t.Errorf("got %d distinct signals, want %d", len(seen), n)
	}
}

func TestLenAndClear(t *testing.T) {
	q := NewQueue("spike")
	q.OnNotification("DONE:0")
	q.OnNotification("DONE:1")
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
	q.Clear()
	if q.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", q.Len())
	}
	if _, ok := q.Wait(context.Background(), 20*time.Millisecond); ok {
		t.Error("Wait() = true after Clear")
	}
}
