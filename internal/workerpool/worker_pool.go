// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workerpool

import (
	"fmt"
	"sync"

	"github.com/googlecloudplatform/threadpool/cfg"
	"github.com/googlecloudplatform/threadpool/common"
	"github.com/googlecloudplatform/threadpool/internal/locker"
	"github.com/googlecloudplatform/threadpool/internal/logger"
	"github.com/googlecloudplatform/threadpool/metrics"
	"github.com/jacobsa/timeutil"
)

// WorkerPool runs submitted tasks on a fixed set of workers.
type WorkerPool interface {
	// Submit queues task for execution. It never waits for a worker. Once
	// Stop has been called it returns ErrPoolNotRunning and the task stays
	// with the caller.
	Submit(name string, task Task) (*Handle, error)

	// Remove withdraws a task that no worker has claimed yet and hands it
	// back. It returns false when the task is already running, finished or
	// unknown to the pool.
	Remove(h *Handle) (Task, bool)

	// Stop refuses further submissions, lets the workers finish according to
	// the drain policy and blocks until all of them have exited.
	Stop() error

	// Stats returns a consistent snapshot of the pool counters.
	Stats() Stats
}

// PoolState is the life-cycle state of a ThreadPool.
type PoolState int32

const (
	Running PoolState = iota
	Stopping
	Stopped
)

func (s PoolState) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Workers int
	State   PoolState

	// Tasks waiting in the queue, tasks being executed and workers blocked
	// waiting for work.
	Pending int
	Active  int
	Idle    int

	// Cumulative counters. Every accepted task is counted in Submitted and,
	// once it leaves the pool, in exactly one of the outcome counters.
	Submitted uint64
	Rejected  uint64
	Succeeded uint64
	Failed    uint64
	Panicked  uint64
	Removed   uint64
	Discarded uint64
}

// ThreadPool is a fixed-size pool of workers consuming a single FIFO queue.
//
// The queue and the life-cycle state are guarded by one mutex; a condition
// variable on that mutex lets idle workers sleep until a task is submitted or
// the pool stops.
type ThreadPool struct {
	/////////////////////////
	// Constant data
	/////////////////////////

	workerCount  int
	drainPolicy  cfg.DrainPolicy
	lockOSThread bool
	metricHandle metrics.MetricHandle
	clock        timeutil.Clock

	/////////////////////////
	// Mutable state
	/////////////////////////

	mu sync.Locker

	// Signalled once per submission and broadcast on Stop.
	cond *sync.Cond

	// INVARIANT: state == Stopped => queue.IsEmpty() && active == 0 && idle == 0
	//
	// GUARDED_BY(mu)
	state PoolState

	// Accepted tasks no worker has claimed yet, in acceptance order.
	//
	// INVARIANT: For each h, h.State() == TaskQueued && h.task != nil
	// INVARIANT: Sequence numbers are strictly increasing from head to tail
	//
	// GUARDED_BY(mu)
	queue *common.Queue[*Handle]

	// GUARDED_BY(mu)
	nextSeq uint64

	// INVARIANT: 0 <= active && 0 <= idle && active+idle <= workerCount
	//
	// GUARDED_BY(mu)
	active int
	idle   int

	// INVARIANT: submitted == succeeded + failed + panicked + removed +
	//            discarded + active + queue.Len()
	//
	// GUARDED_BY(mu)
	submitted uint64
	rejected  uint64
	succeeded uint64
	failed    uint64
	panicked  uint64
	removed   uint64
	discarded uint64

	wg sync.WaitGroup

	// Called with mu held each time a worker claims a task.
	onClaim func(*Handle)
}

var _ WorkerPool = (*ThreadPool)(nil)

// NewThreadPool starts c.WorkerCount workers and returns the running pool.
// A nil metricHandle disables metrics.
func NewThreadPool(c *cfg.PoolConfig, metricHandle metrics.MetricHandle) (*ThreadPool, error) {
	p, err := newThreadPool(c, metricHandle, timeutil.RealClock())
	if err != nil {
		return nil, err
	}
	p.start()
	return p, nil
}

// newThreadPool builds a pool without starting its workers.
func newThreadPool(c *cfg.PoolConfig, metricHandle metrics.MetricHandle, clock timeutil.Clock) (*ThreadPool, error) {
	if c.WorkerCount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkerCount, c.WorkerCount)
	}
	if c.WorkerCount > cfg.MaxSupportedWorkerCount {
		return nil, fmt.Errorf("%w: got %d, max is %d", ErrInvalidWorkerCount, c.WorkerCount, cfg.MaxSupportedWorkerCount)
	}

	drainPolicy := c.DrainPolicy
	if drainPolicy == "" {
		drainPolicy = cfg.DrainToEmpty
	}
	if !drainPolicy.IsValid() {
		return nil, fmt.Errorf("invalid drain policy: %q", c.DrainPolicy)
	}

	if metricHandle == nil {
		metricHandle = metrics.NewNoopMetrics()
	}

	p := &ThreadPool{
		workerCount:  int(c.WorkerCount),
		drainPolicy:  drainPolicy,
		lockOSThread: c.LockOsThread,
		metricHandle: metricHandle,
		clock:        clock,
		state:        Running,
		queue:        common.NewQueue[*Handle](),
	}
	p.mu = locker.New("ThreadPool", p.checkInvariants)
	p.cond = sync.NewCond(p.mu)
	return p, nil
}

func (p *ThreadPool) start() {
	logger.Infof("Starting thread pool with %d workers (drain policy %q)", p.workerCount, p.drainPolicy)
	p.wg.Add(p.workerCount)
	for i := range p.workerCount {
		go p.worker(i)
	}
}

// WorkerCount returns the fixed number of workers.
func (p *ThreadPool) WorkerCount() int {
	return p.workerCount
}

////////////////////////////////////////////////////////////////////////
// Public interface
////////////////////////////////////////////////////////////////////////

// LOCKS_EXCLUDED(p.mu)
func (p *ThreadPool) Submit(name string, task Task) (*Handle, error) {
	if task == nil {
		return nil, ErrNilTask
	}
	h := newHandle(name, task)

	p.mu.Lock()
	if p.state != Running {
		p.rejected++
		state := p.state
		p.mu.Unlock()

		p.metricHandle.TaskSubmitCount(1, metrics.SubmitStatusRejectedAttr)
		logger.Tracef("Rejected task %q: pool is %v", name, state)
		return nil, ErrPoolNotRunning
	}

	p.nextSeq++
	h.seq = p.nextSeq
	h.enqueuedAt = p.clock.Now()
	p.queue.Push(h)
	p.submitted++
	p.metricHandle.PoolPendingTasks(1)
	p.cond.Signal()
	p.mu.Unlock()

	p.metricHandle.TaskSubmitCount(1, metrics.SubmitStatusAcceptedAttr)
	logger.Tracef("Accepted task %q (seq %d)", name, h.seq)
	return h, nil
}

// LOCKS_EXCLUDED(p.mu)
func (p *ThreadPool) Remove(h *Handle) (Task, bool) {
	if h == nil {
		return nil, false
	}

	p.mu.Lock()
	_, found := p.queue.RemoveFirst(func(queued *Handle) bool {
		return queued == h
	})
	var task Task
	if found {
		task = h.task
		h.task = nil
		p.removed++
		p.metricHandle.PoolPendingTasks(-1)
	}
	p.mu.Unlock()

	if !found {
		return nil, false
	}

	h.finish(TaskRemoved, ErrTaskRemoved)
	p.metricHandle.TaskOutcomeCount(1, metrics.TaskOutcomeRemovedAttr)
	logger.Tracef("Removed task %q (seq %d) before execution", h.name, h.seq)
	return task, true
}

// Stop moves the pool to Stopping and wakes every worker. With the drain
// policy, workers keep executing queued tasks until the queue is empty; with
// hard stop, queued tasks are discarded at once. Stop then waits for all
// workers to exit and leaves the pool Stopped.
//
// Only the first call stops the pool. Any later or concurrent call returns
// ErrPoolAlreadyStopped without waiting.
//
// LOCKS_EXCLUDED(p.mu)
func (p *ThreadPool) Stop() error {
	p.mu.Lock()
	if p.state != Running {
		p.mu.Unlock()
		return ErrPoolAlreadyStopped
	}
	p.state = Stopping

	var discarded []*Handle
	if p.drainPolicy == cfg.HardStop {
		discarded = p.queue.Drain()
		for _, h := range discarded {
			h.task = nil
		}
		p.discarded += uint64(len(discarded))
		p.metricHandle.PoolPendingTasks(-int64(len(discarded)))
	}
	pending := p.queue.Len()

	// Every idle worker has to re-check the state, not just one.
	p.cond.Broadcast()
	p.mu.Unlock()

	for _, h := range discarded {
		h.finish(TaskDiscarded, ErrTaskDiscarded)
	}
	if len(discarded) > 0 {
		p.metricHandle.TaskOutcomeCount(int64(len(discarded)), metrics.TaskOutcomeDiscardedAttr)
	}
	logger.Infof("Stopping thread pool: %d queued tasks to drain, %d discarded", pending, len(discarded))

	p.wg.Wait()

	p.mu.Lock()
	p.state = Stopped
	p.mu.Unlock()

	logger.Infof("Thread pool stopped")
	return nil
}

// LOCKS_EXCLUDED(p.mu)
func (p *ThreadPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Workers:   p.workerCount,
		State:     p.state,
		Pending:   p.queue.Len(),
		Active:    p.active,
		Idle:      p.idle,
		Submitted: p.submitted,
		Rejected:  p.rejected,
		Succeeded: p.succeeded,
		Failed:    p.failed,
		Panicked:  p.panicked,
		Removed:   p.removed,
		Discarded: p.discarded,
	}
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// LOCKS_REQUIRED(p.mu)
func (p *ThreadPool) checkInvariants() {
	// INVARIANT: 0 <= active && 0 <= idle && active+idle <= workerCount
	if p.active < 0 || p.idle < 0 || p.active+p.idle > p.workerCount {
		panic(fmt.Sprintf("worker accounting broken: active=%d idle=%d workers=%d", p.active, p.idle, p.workerCount))
	}

	// INVARIANT: state == Stopped => queue.IsEmpty() && active == 0 && idle == 0
	if p.state == Stopped && (!p.queue.IsEmpty() || p.active != 0 || p.idle != 0) {
		panic(fmt.Sprintf("stopped pool still busy: pending=%d active=%d idle=%d", p.queue.Len(), p.active, p.idle))
	}

	// INVARIANT: For each h, h.State() == TaskQueued && h.task != nil
	// INVARIANT: Sequence numbers are strictly increasing from head to tail
	//
	// Walking the whole queue on every lock is too slow, so only the head is
	// checked here.
	if !p.queue.IsEmpty() {
		head := p.queue.Peek()
		if head.State() != TaskQueued || head.task == nil {
			panic(fmt.Sprintf("queue head %q (seq %d) is %v", head.name, head.seq, head.State()))
		}
		if head.seq > p.nextSeq {
			panic(fmt.Sprintf("queue head seq %d is beyond last issued seq %d", head.seq, p.nextSeq))
		}
	}

	// INVARIANT: submitted == succeeded + failed + panicked + removed +
	//            discarded + active + queue.Len()
	accounted := p.succeeded + p.failed + p.panicked + p.removed + p.discarded +
		uint64(p.active) + uint64(p.queue.Len())
	if p.submitted != accounted {
		panic(fmt.Sprintf("lost task: submitted=%d accounted=%d", p.submitted, accounted))
	}
}
