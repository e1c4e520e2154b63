package workerpool

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Task is a unit of work submitted to a Pool.
type Task func()

// Pool is a fixed-size goroutine pool draining a shared bounded task
// queue, mirroring ThreadPool.hpp: a panic in one task is recovered and
// logged rather than taking down the worker.
type Pool struct {
	queue  *BoundedQueue[Task]
	log    *zap.SugaredLogger
	active int64
	wg     sync.WaitGroup
}

// NewPool starts numThreads workers pulling from a queue sized
// numThreads*100, matching the original's queue-sizing convention.
func NewPool(numThreads int, log *zap.SugaredLogger) *Pool {
	if numThreads <= 0 {
		numThreads = 1
	}
	p := &Pool{
		queue: NewBoundedQueue[Task](numThreads * 100),
		log:   log,
	}
	p.wg.Add(numThreads)
	for i := 0; i < numThreads; i++ {
		go p.workerLoop(i)
	}
	return p
}

func (p *Pool) workerLoop(workerID int) {
	defer p.wg.Done()
	for {
		task, ok := p.queue.Pop()
		if !ok {
			return
		}
		p.runTask(workerID, task)
	}
}

func (p *Pool) runTask(workerID int, task Task) {
	atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)
	defer func() {
		if r := recover(); r != nil && p.log != nil {
			p.log.Errorw("worker task panicked", "worker_id", workerID, "panic", r)
		}
	}()
	task()
}

// Submit enqueues a task, blocking per ctx until there is room. Returns
// the PushOutcome so callers can distinguish a full queue from a
// shutdown pool.
func (p *Pool) Submit(ctx context.Context, task Task) PushOutcome {
	return p.queue.Push(ctx, task)
}

// ActiveTaskCount returns how many tasks are currently executing.
func (p *Pool) ActiveTaskCount() int {
	return int(atomic.LoadInt64(&p.active))
}

// PendingTaskCount returns how many tasks are queued but not yet picked
// up by a worker.
func (p *Pool) PendingTaskCount() int {
	return p.queue.Len()
}

// Shutdown stops accepting new tasks and waits for every worker to drain
// the queue and exit.
func (p *Pool) Shutdown() {
	p.queue.Shutdown()
	p.wg.Wait()
}
