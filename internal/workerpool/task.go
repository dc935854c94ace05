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
	"context"
	"sync/atomic"
	"time"
)

// Task is a single-use unit of work. Execute is called at most once, on an
// arbitrary worker goroutine. A non-nil error, or a panic, marks the task as
// failed; neither reaches the submitter except through its Handle.
type Task interface {
	Execute() error
}

// TaskFunc adapts an ordinary function to the Task interface.
type TaskFunc func() error

func (f TaskFunc) Execute() error {
	return f()
}

// TaskState is the life-cycle position of a submitted task.
type TaskState int32

const (
	// TaskQueued means the task is waiting in the pool queue.
	TaskQueued TaskState = iota
	// TaskRunning means a worker has claimed the task and is executing it.
	TaskRunning
	// TaskCompleted means Execute returned or panicked.
	TaskCompleted
	// TaskRemoved means the task was withdrawn by Remove before any worker
	// claimed it. Ownership went back to the caller.
	TaskRemoved
	// TaskDiscarded means a hard stop dropped the task before any worker
	// claimed it.
	TaskDiscarded
)

func (s TaskState) String() string {
	switch s {
	case TaskQueued:
		return "Queued"
	case TaskRunning:
		return "Running"
	case TaskCompleted:
		return "Completed"
	case TaskRemoved:
		return "Removed"
	case TaskDiscarded:
		return "Discarded"
	default:
		return "Unknown"
	}
}

// Handle is the completion handle returned by Submit. It identifies the
// task for Remove and reports how the task ended.
type Handle struct {
	name       string
	seq        uint64
	enqueuedAt time.Time

	// The work itself. Moved out, exactly once, by whoever takes the task off
	// the queue: a worker, Remove or a hard stop.
	//
	// GUARDED_BY(pool.mu)
	task Task

	state atomic.Int32

	// Closed once the task reached a final state. err is written before.
	done chan struct{}
	err  error
}

func newHandle(name string, task Task) *Handle {
	return &Handle{
		name: name,
		task: task,
		done: make(chan struct{}),
	}
}

// Name returns the diagnostic name given at submission.
func (h *Handle) Name() string {
	return h.name
}

// Seq returns the acceptance sequence number. Sequence numbers start at 1
// and follow queue order.
func (h *Handle) Seq() uint64 {
	return h.seq
}

// State returns the current state of the task.
func (h *Handle) State() TaskState {
	return TaskState(h.state.Load())
}

// Done returns a channel closed once the task is completed, removed or
// discarded.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the outcome of the task once Done is closed, and nil before.
// A completed task yields the error returned by Execute or a *PanicError.
// Removed and discarded tasks yield ErrTaskRemoved and ErrTaskDiscarded.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the task reaches a final state or ctx is done, and
// returns Err or the context error respectively.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) finish(state TaskState, err error) {
	h.err = err
	h.state.Store(int32(state))
	close(h.done)
}
