package workerpool

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	p := NewPool(4, nil)
	defer p.Shutdown()

	var mu sync.Mutex
	count := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		outcome := p.Submit(context.Background(), func() {
			defer wg.Done()
			mu.Lock()
			count++
			mu.Unlock()
		})
		if outcome != Success {
			t.Fatalf("Submit = %v, want Success", outcome)
		}
	}
	waitWithTimeout(t, &wg, time.Second)

	mu.Lock()
	defer mu.Unlock()
	if count != 50 {
		t.Fatalf("count = %d, want 50", count)
	}
}

func TestPoolRecoversPanickingTask(t *testing.T) {
	p := NewPool(1, nil)
	defer p.Shutdown()

	var wg sync.WaitGroup
	wg.Add(2)
	p.Submit(context.Background(), func() {
		defer wg.Done()
		panic("boom")
	})
	ran := false
	p.Submit(context.Background(), func() {
		defer wg.Done()
		ran = true
	})
	waitWithTimeout(t, &wg, time.Second)
	if !ran {
		t.Fatalf("worker should keep processing tasks after a panic")
	}
}

func waitWithTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for tasks to complete")
	}
}
