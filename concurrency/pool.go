package concurrency

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxWorkers is used when NewWorkerPool gets a non-positive size.
	DefaultMaxWorkers = 10
	// DefaultLaneCapacity bounds the tasks waiting behind one key.
	DefaultLaneCapacity = 64
)

// WorkerPool runs tasks with at most maxWorkers running at once. Tasks
// submitted under the same key form a lane and run one at a time in
// submission order; different lanes run concurrently.
type WorkerPool struct {
	maxWorkers int
	laneCap    int
	sem        chan struct{}
	log        zerolog.Logger

	mu       sync.Mutex
	lanes    map[string]*queue.Queue
	started  bool
	draining bool
	wg       sync.WaitGroup
}

// NewWorkerPool creates a new worker pool with the specified max workers
func NewWorkerPool(maxWorkers int) *WorkerPool {
	return NewWorkerPoolWithLogger(maxWorkers, nil)
}

// NewWorkerPoolWithLogger is NewWorkerPool with panics and dropped tasks
// logged to logger.
func NewWorkerPoolWithLogger(maxWorkers int, logger *zerolog.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}

	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "pool").Logger()
	}

	return &WorkerPool{
		maxWorkers: maxWorkers,
		laneCap:    DefaultLaneCapacity,
		sem:        make(chan struct{}, maxWorkers),
		log:        log,
		lanes:      make(map[string]*queue.Queue),
	}
}

// SetLaneCapacity changes how many tasks may wait behind one key.
func (p *WorkerPool) SetLaneCapacity(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > 0 {
		p.laneCap = n
	}
}

// Start starts the worker pool
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
}

// Submit queues task on the lane of key. Before Start the task runs
// synchronously. It returns false, dropping the task, when the lane is full
// or the pool is stopping.
func (p *WorkerPool) Submit(key string, task func()) bool {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return false
	}
	if !p.started {
		p.mu.Unlock()
		p.run(task)
		return true
	}

	pending, ok := p.lanes[key]
	if !ok {
		pending = queue.New()
		p.lanes[key] = pending
		p.wg.Add(1)
		go p.drain(key, pending)
	}
	if pending.Length() >= p.laneCap {
		p.mu.Unlock()
		p.log.Warn().Str("lane", key).Int("capacity", p.laneCap).Msg("lane full; task dropped")
		return false
	}
	pending.Add(task)
	p.mu.Unlock()
	return true
}

// drain runs the tasks of one lane until it is empty, then retires the lane.
func (p *WorkerPool) drain(key string, pending *queue.Queue) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		if pending.Length() == 0 {
			delete(p.lanes, key)
			p.mu.Unlock()
			return
		}
		task := pending.Remove().(func())
		p.mu.Unlock()

		p.sem <- struct{}{}
		p.run(task)
		<-p.sem
	}
}

func (p *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("task panicked")
		}
	}()
	task()
}

// Stop waits for every queued task to finish. Submissions made meanwhile
// are rejected. The pool can be started again afterwards.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.draining = true
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.draining = false
	p.mu.Unlock()
}

// IsStarted reports whether tasks are dispatched to workers
func (p *WorkerPool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Pending returns the number of tasks waiting in all lanes
func (p *WorkerPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, pending := range p.lanes {
		n += pending.Length()
	}
	return n
}

// Lanes returns the number of keys with queued or running tasks
func (p *WorkerPool) Lanes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}

// MaxWorkers returns the maximum number of tasks running at once
func (p *WorkerPool) MaxWorkers() int {
	return p.maxWorkers
}
