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
	"errors"
	"runtime"
	"runtime/debug"

	"github.com/googlecloudplatform/threadpool/internal/logger"
	"github.com/googlecloudplatform/threadpool/internal/monitor"
	"github.com/googlecloudplatform/threadpool/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// worker executes queued tasks one at a time until the pool stops and, under
// the drain policy, the queue is empty.
func (p *ThreadPool) worker(id int) {
	defer p.wg.Done()

	if p.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	logger.Debugf("Worker %d started on OS thread %d", id, osThreadID())

	for {
		p.mu.Lock()
		h, task := p.claimLocked()
		p.mu.Unlock()

		if h == nil {
			logger.Debugf("Worker %d exiting", id)
			return
		}

		outcome := p.execute(id, h, task)

		p.mu.Lock()
		p.active--
		switch outcome {
		case metrics.TaskOutcomeSucceededAttr:
			p.succeeded++
		case metrics.TaskOutcomePanickedAttr:
			p.panicked++
		default:
			p.failed++
		}
		p.mu.Unlock()

		p.metricHandle.PoolActiveWorkers(-1)
		p.metricHandle.TaskOutcomeCount(1, outcome)
	}
}

// claimLocked blocks until there is a task to run or the worker should exit.
// It takes the task at the head of the queue and returns it with its handle,
// or a nil handle once the pool is no longer running and nothing is left to
// do.
//
// LOCKS_REQUIRED(p.mu)
func (p *ThreadPool) claimLocked() (*Handle, Task) {
	for p.queue.IsEmpty() && p.state == Running {
		p.idle++
		p.cond.Wait()
		p.idle--
	}

	// Stopping with an empty queue. Under hard stop the queue was emptied by
	// Stop, so this also covers that policy.
	if p.queue.IsEmpty() {
		return nil, nil
	}

	h := p.queue.Pop()
	task := h.task
	h.task = nil
	h.state.Store(int32(TaskRunning))
	p.active++
	p.metricHandle.PoolPendingTasks(-1)
	p.metricHandle.PoolActiveWorkers(1)

	if p.onClaim != nil {
		p.onClaim(h)
	}
	return h, task
}

// execute runs the task outside the lock, records its telemetry and completes
// its handle.
//
// LOCKS_EXCLUDED(p.mu)
func (p *ThreadPool) execute(workerID int, h *Handle, task Task) metrics.TaskOutcome {
	ctx := context.Background()
	start := p.clock.Now()
	p.metricHandle.TaskQueueLatency(ctx, start.Sub(h.enqueuedAt))

	ctx, span := monitor.StartSpan(ctx, "ExecuteTask", trace.WithAttributes(
		attribute.String("task.name", h.name),
		attribute.Int64("task.seq", int64(h.seq)),
		attribute.Int("worker.id", workerID),
	))
	err := runSafely(task)

	outcome := metrics.TaskOutcomeSucceededAttr
	var panicErr *PanicError
	switch {
	case errors.As(err, &panicErr):
		outcome = metrics.TaskOutcomePanickedAttr
		logger.Warnf("Task %q (seq %d) panicked on worker %d: %v", h.name, h.seq, workerID, panicErr.Value)
		logger.Debugf("Stack of panicked task %q:\n%s", h.name, panicErr.Stack)
	case err != nil:
		outcome = metrics.TaskOutcomeFailedAttr
		logger.Warnf("Task %q (seq %d) failed on worker %d: %v", h.name, h.seq, workerID, err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	p.metricHandle.TaskExecutionLatency(ctx, p.clock.Now().Sub(start), outcome)
	h.finish(TaskCompleted, err)
	return outcome
}

// runSafely calls task.Execute and turns a panic into a *PanicError so that
// it cannot take down the worker.
func runSafely(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return task.Execute()
}
