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

// Package workload drives a worker pool with synthetic tasks.
package workload

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/googlecloudplatform/threadpool/cfg"
	"github.com/googlecloudplatform/threadpool/internal/logger"
	"github.com/googlecloudplatform/threadpool/internal/workerpool"
	"github.com/jacobsa/timeutil"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Submitter is the part of a worker pool the workload needs.
type Submitter interface {
	Submit(name string, task workerpool.Task) (*workerpool.Handle, error)
}

// Runner submits c.TaskCount synthetic tasks from c.Producers goroutines and
// waits for all accepted tasks to finish.
type Runner struct {
	config cfg.WorkloadConfig
	clock  timeutil.Clock
	runID  string
	seed   uint64
}

// NewRunner returns a runner with a fresh run id.
func NewRunner(c cfg.WorkloadConfig) *Runner {
	id := uuid.New()
	return &Runner{
		config: c,
		clock:  timeutil.RealClock(),
		runID:  id.String(),
		seed:   uint64(id.ID()),
	}
}

// RunID identifies the run in task names, logs and telemetry.
func (r *Runner) RunID() string {
	return r.runID
}

// Run produces the workload into pool. Cancelling ctx, or the pool refusing
// submissions because it is stopping, ends production early; neither is an
// error. Run returns once every accepted task has reached a final state.
func (r *Runner) Run(ctx context.Context, pool Submitter) (*Report, error) {
	report := newReport(r.runID)
	start := r.clock.Now()

	limit := rate.Inf
	if r.config.SubmitRate > 0 {
		limit = rate.Limit(r.config.SubmitRate)
	}
	limiter := rate.NewLimiter(limit, 1)

	producers := int(r.config.Producers)
	if producers < 1 {
		producers = 1
	}
	logger.Infof("Starting workload %s: %d tasks from %d producers", r.runID, r.config.TaskCount, producers)

	handles := make([][]*workerpool.Handle, producers)
	group, groupCtx := errgroup.WithContext(ctx)
	for p := range producers {
		count := share(r.config.TaskCount, producers, p)
		factory := newTaskFactory(r.config.TaskDuration, r.config.FailureRate, r.config.PanicRate, r.seed+uint64(p))
		group.Go(func() error {
			var err error
			handles[p], err = r.produce(groupCtx, pool, limiter, factory, report, p, count)
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return report, fmt.Errorf("workload %s: %w", r.runID, err)
	}

	// Accepted tasks always finish: the pool either runs them or, on a hard
	// stop, discards them.
	for _, perProducer := range handles {
		for _, h := range perProducer {
			report.recordOutcome(h.Wait(context.Background()))
		}
	}
	report.setElapsed(r.clock.Now().Sub(start))

	summary := report.Snapshot()
	logger.Infof("Workload %s done: %d submitted, %d finished", r.runID, summary.Submitted, summary.Finished())
	return report, nil
}

func (r *Runner) produce(
	ctx context.Context,
	pool Submitter,
	limiter *rate.Limiter,
	factory *taskFactory,
	report *Report,
	producer int,
	count int64) ([]*workerpool.Handle, error) {
	handles := make([]*workerpool.Handle, 0, count)
	for i := range int(count) {
		if err := limiter.Wait(ctx); err != nil {
			logger.Debugf("Producer %d stopped after %d tasks: %v", producer, i, err)
			return handles, nil
		}

		h, err := pool.Submit(taskName(r.runID, producer, i), factory.next())
		report.recordSubmit(err)
		switch {
		case errors.Is(err, workerpool.ErrPoolNotRunning):
			logger.Debugf("Producer %d stopped after %d tasks: pool is not running", producer, i)
			return handles, nil
		case err != nil:
			return handles, fmt.Errorf("producer %d: submit: %w", producer, err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// share splits total as evenly as possible, giving the remainder to the first
// producers.
func share(total int64, producers, index int) int64 {
	n := total / int64(producers)
	if int64(index) < total%int64(producers) {
		n++
	}
	return n
}
