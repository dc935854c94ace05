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

package metrics

import (
	"context"
	"time"
)

// SubmitStatus is the attribute recorded with task/submit_count.
type SubmitStatus string

const (
	SubmitStatusAcceptedAttr SubmitStatus = "accepted"
	SubmitStatusRejectedAttr SubmitStatus = "rejected"
)

// TaskOutcome is the attribute recorded with task/outcome_count and
// task/execution_latency.
type TaskOutcome string

const (
	TaskOutcomeSucceededAttr TaskOutcome = "succeeded"
	TaskOutcomeFailedAttr    TaskOutcome = "failed"
	TaskOutcomePanickedAttr  TaskOutcome = "panicked"
	TaskOutcomeRemovedAttr   TaskOutcome = "removed"
	TaskOutcomeDiscardedAttr TaskOutcome = "discarded"
)

// MetricHandle provides an interface for recording metrics of a thread pool.
type MetricHandle interface {
	// PoolActiveWorkers - The number of workers currently executing a task.
	PoolActiveWorkers(inc int64)

	// PoolPendingTasks - The number of accepted tasks not yet claimed by a worker.
	PoolPendingTasks(inc int64)

	// TaskExecutionLatency - The cumulative distribution of task execution latencies, along with the outcome: succeeded, failed or panicked.
	TaskExecutionLatency(ctx context.Context, latency time.Duration, outcome TaskOutcome)

	// TaskOutcomeCount - The cumulative number of tasks that reached a final state, along with the outcome.
	TaskOutcomeCount(inc int64, outcome TaskOutcome)

	// TaskQueueLatency - The cumulative distribution of the time tasks spent in the queue before a worker claimed them.
	TaskQueueLatency(ctx context.Context, latency time.Duration)

	// TaskSubmitCount - The cumulative number of submissions, along with the status: accepted or rejected.
	TaskSubmitCount(inc int64, status SubmitStatus)
}
