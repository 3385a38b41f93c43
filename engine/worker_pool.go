package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// TaskChannel queues tasks for the workers of a pool.
type TaskChannel chan *Task

// TaskHandler runs one task on a worker goroutine.
type TaskHandler func(context.Context, *Task)

// WorkerPool manages a resizable set of workers draining a TaskChannel.
type WorkerPool struct {
	taskChan TaskChannel
	handler  TaskHandler

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	workers     map[int]chan struct{}
	workerCount int
	nextID      int
	wg          sync.WaitGroup

	busy atomic.Int32
}

// NewWorkerPool creates a pool with no workers. Call SetWorkerCount to start some.
func NewWorkerPool(ctx context.Context, taskChan TaskChannel, handler TaskHandler) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		taskChan: taskChan,
		handler:  handler,
		ctx:      ctx,
		cancel:   cancel,
		workers:  make(map[int]chan struct{}),
	}
}

// SetWorkerCount scales the number of workers up or down. Removed workers
// finish the task they are running first.
func (p *WorkerPool) SetWorkerCount(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.workerCount < count {
		p.addWorker()
	}
	for p.workerCount > count {
		p.removeWorker()
	}
}

// WorkerCount returns the current target number of workers.
func (p *WorkerPool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workerCount
}

// Busy returns the number of workers running a task right now.
func (p *WorkerPool) Busy() int {
	return int(p.busy.Load())
}

func (p *WorkerPool) addWorker() {
	quit := make(chan struct{})
	p.workers[p.nextID] = quit
	p.nextID++
	p.workerCount++

	p.wg.Add(1)
	go p.work(quit)
}

func (p *WorkerPool) removeWorker() {
	for id, quit := range p.workers {
		close(quit)
		delete(p.workers, id)
		p.workerCount--
		return
	}
}

func (p *WorkerPool) work(quit <-chan struct{}) {
	defer p.wg.Done()
	for {
		// quit and cancellation win over queued tasks
		select {
		case <-quit:
			return
		case <-p.ctx.Done():
			return
		default:
		}

		select {
		case <-quit:
			return
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskChan:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

func (p *WorkerPool) run(task *Task) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	p.handler(p.ctx, task)
}

// Stop cancels the pool context and waits for all workers to exit.
// Running tasks see their context cancelled.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
}
