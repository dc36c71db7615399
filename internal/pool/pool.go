// Package pool provides the small concurrency primitives shared by the
// render and asset pipelines: a bounded generic worker pool and a reusable
// buffer pool.
package pool

import (
	"bytes"
	"context"
	"runtime"
	"sync"
)

const (
	// MaxWorkers caps pool size regardless of GOMAXPROCS.
	MaxWorkers = 32

	// workerBufferSize is the per-worker task queue headroom.
	workerBufferSize = 4

	// maxPooledBufferSize prevents oversized buffers from being retained.
	maxPooledBufferSize = 1 << 20
)

// WorkerPool fans tasks out to a fixed set of workers. Submit blocks when
// the queue is full, which keeps memory bounded on large sites. The pool
// stops draining when the context is cancelled.
type WorkerPool[T any] struct {
	workers   int
	ctx       context.Context
	wg        sync.WaitGroup
	taskQueue chan T
	handler   func(T)
}

// NewWorkerPool creates a pool of the given size running handler for every
// submitted task. workers <= 0 selects NumCPU.
func NewWorkerPool[T any](ctx context.Context, workers int, handler func(T)) *WorkerPool[T] {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	return &WorkerPool[T]{
		workers:   workers,
		ctx:       ctx,
		taskQueue: make(chan T, workers*workerBufferSize),
		handler:   handler,
	}
}

// Start launches the workers.
func (p *WorkerPool[T]) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *WorkerPool[T]) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.handler(task)
		}
	}
}

// Submit enqueues a task. It is a no-op after the context is cancelled.
func (p *WorkerPool[T]) Submit(task T) {
	select {
	case <-p.ctx.Done():
		return
	case p.taskQueue <- task:
	}
}

// Stop closes the queue and waits for the workers to drain it.
func (p *WorkerPool[T]) Stop() {
	close(p.taskQueue)
	p.wg.Wait()
}

// Run is the common submit-all-and-wait shape: it starts the pool, submits
// every task, and blocks until all are handled or the context is cancelled.
func Run[T any](ctx context.Context, workers int, tasks []T, handler func(T)) {
	p := NewWorkerPool(ctx, workers, handler)
	p.Start()
	for _, task := range tasks {
		p.Submit(task)
	}
	p.Stop()
}

// BufferPool manages reusable bytes.Buffer objects to reduce allocations in
// the render hot path.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a new BufferPool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				return new(bytes.Buffer)
			},
		},
	}
}

// Get retrieves a buffer from the pool.
func (p *BufferPool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

// Put returns a buffer to the pool, resetting it for reuse. Oversized
// buffers are discarded to prevent memory hoarding.
func (p *BufferPool) Put(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBufferSize {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}

// SharedBuffers is the process-wide buffer pool.
var SharedBuffers = NewBufferPool()
