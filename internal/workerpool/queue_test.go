package workerpool

import (
	"context"
	"testing"
	"time"
)

func TestBoundedQueuePushPop(t *testing.T) {
	q := NewBoundedQueue[int](2)
	if outcome := q.Push(context.Background(), 1); outcome != Success {
		t.Fatalf("Push = %v, want Success", outcome)
	}
	v, ok := q.Pop()
	if !ok || v != 1 {
		t.Fatalf("Pop = %d, %v, want 1, true", v, ok)
	}
}

func TestBoundedQueueTryPushFull(t *testing.T) {
	q := NewBoundedQueue[int](1)
	if outcome := q.TryPush(1); outcome != Success {
		t.Fatalf("first TryPush = %v, want Success", outcome)
	}
	if outcome := q.TryPush(2); outcome != Full {
		t.Fatalf("second TryPush = %v, want Full", outcome)
	}
}

func TestBoundedQueueShutdownWakesPop(t *testing.T) {
	q := NewBoundedQueue[int](1)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()
	q.Shutdown()
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("Pop on empty shut-down queue should return ok=false")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up after Shutdown")
	}
}

func TestBoundedQueuePushContextTimeout(t *testing.T) {
	q := NewBoundedQueue[int](1)
	q.TryPush(1) // fill it

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	outcome := q.Push(ctx, 2)
	if outcome != Timeout {
		t.Fatalf("Push on full queue with expired context = %v, want Timeout", outcome)
	}
}

func TestBoundedQueuePushAfterShutdown(t *testing.T) {
	q := NewBoundedQueue[int](1)
	q.Shutdown()
	if outcome := q.Push(context.Background(), 1); outcome != Shutdown {
		t.Fatalf("Push after Shutdown = %v, want Shutdown", outcome)
	}
}
