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
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/googlecloudplatform/threadpool/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const logInterval = 5 * time.Minute

var (
	unrecognizedAttr                            atomic.Value
	taskExecutionLatencyOutcomeFailedAttrSet    = metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", "failed")))
	taskExecutionLatencyOutcomePanickedAttrSet  = metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", "panicked")))
	taskExecutionLatencyOutcomeSucceededAttrSet = metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", "succeeded")))
	taskOutcomeCountOutcomeDiscardedAttrSet     = metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", "discarded")))
	taskOutcomeCountOutcomeFailedAttrSet        = metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", "failed")))
	taskOutcomeCountOutcomePanickedAttrSet      = metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", "panicked")))
	taskOutcomeCountOutcomeRemovedAttrSet       = metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", "removed")))
	taskOutcomeCountOutcomeSucceededAttrSet     = metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", "succeeded")))
	taskSubmitCountStatusAcceptedAttrSet        = metric.WithAttributeSet(attribute.NewSet(attribute.String("status", "accepted")))
	taskSubmitCountStatusRejectedAttrSet        = metric.WithAttributeSet(attribute.NewSet(attribute.String("status", "rejected")))

	// Latency buckets in microseconds, from 50us up to 500s.
	latencyBucketsUs = []float64{50, 100, 200, 400, 800, 1200, 2000, 5000, 10000, 20000, 50000, 100000, 200000, 500000, 1000000, 2000000, 5000000, 10000000, 50000000, 100000000, 300000000, 500000000}
)

type histogramRecord struct {
	ctx        context.Context
	instrument metric.Int64Histogram
	value      int64
	attributes metric.RecordOption
}

type otelMetrics struct {
	ch                                     chan histogramRecord
	wg                                     *sync.WaitGroup
	poolActiveWorkersAtomic                *atomic.Int64
	poolPendingTasksAtomic                 *atomic.Int64
	taskOutcomeCountOutcomeDiscardedAtomic *atomic.Int64
	taskOutcomeCountOutcomeFailedAtomic    *atomic.Int64
	taskOutcomeCountOutcomePanickedAtomic  *atomic.Int64
	taskOutcomeCountOutcomeRemovedAtomic   *atomic.Int64
	taskOutcomeCountOutcomeSucceededAtomic *atomic.Int64
	taskSubmitCountStatusAcceptedAtomic    *atomic.Int64
	taskSubmitCountStatusRejectedAtomic    *atomic.Int64
	taskExecutionLatency                   metric.Int64Histogram
	taskQueueLatency                       metric.Int64Histogram
}

func (o *otelMetrics) PoolActiveWorkers(
	inc int64) {
	o.poolActiveWorkersAtomic.Add(inc)
}

func (o *otelMetrics) PoolPendingTasks(
	inc int64) {
	o.poolPendingTasksAtomic.Add(inc)
}

func (o *otelMetrics) TaskExecutionLatency(
	ctx context.Context, latency time.Duration, outcome TaskOutcome) {
	var record histogramRecord
	switch outcome {
	case TaskOutcomeFailedAttr:
		record = histogramRecord{ctx: ctx, instrument: o.taskExecutionLatency, value: latency.Microseconds(), attributes: taskExecutionLatencyOutcomeFailedAttrSet}
	case TaskOutcomePanickedAttr:
		record = histogramRecord{ctx: ctx, instrument: o.taskExecutionLatency, value: latency.Microseconds(), attributes: taskExecutionLatencyOutcomePanickedAttrSet}
	case TaskOutcomeSucceededAttr:
		record = histogramRecord{ctx: ctx, instrument: o.taskExecutionLatency, value: latency.Microseconds(), attributes: taskExecutionLatencyOutcomeSucceededAttrSet}
	default:
		updateUnrecognizedAttribute(string(outcome))
		return
	}

	select {
	case o.ch <- record: // Do nothing
	default: // Unblock writes to channel if it's full.
	}
}

func (o *otelMetrics) TaskOutcomeCount(
	inc int64, outcome TaskOutcome) {
	if inc < 0 {
		logger.Errorf("Counter metric task/outcome_count received a negative increment: %d", inc)
		return
	}
	switch outcome {
	case TaskOutcomeDiscardedAttr:
		o.taskOutcomeCountOutcomeDiscardedAtomic.Add(inc)
	case TaskOutcomeFailedAttr:
		o.taskOutcomeCountOutcomeFailedAtomic.Add(inc)
	case TaskOutcomePanickedAttr:
		o.taskOutcomeCountOutcomePanickedAtomic.Add(inc)
	case TaskOutcomeRemovedAttr:
		o.taskOutcomeCountOutcomeRemovedAtomic.Add(inc)
	case TaskOutcomeSucceededAttr:
		o.taskOutcomeCountOutcomeSucceededAtomic.Add(inc)
	default:
		updateUnrecognizedAttribute(string(outcome))
		return
	}
}

func (o *otelMetrics) TaskQueueLatency(
	ctx context.Context, latency time.Duration) {
	var record histogramRecord
	record = histogramRecord{ctx: ctx, instrument: o.taskQueueLatency, value: latency.Microseconds()}

	select {
	case o.ch <- record: // Do nothing
	default: // Unblock writes to channel if it's full.
	}
}

func (o *otelMetrics) TaskSubmitCount(
	inc int64, status SubmitStatus) {
	if inc < 0 {
		logger.Errorf("Counter metric task/submit_count received a negative increment: %d", inc)
		return
	}
	switch status {
	case SubmitStatusAcceptedAttr:
		o.taskSubmitCountStatusAcceptedAtomic.Add(inc)
	case SubmitStatusRejectedAttr:
		o.taskSubmitCountStatusRejectedAtomic.Add(inc)
	default:
		updateUnrecognizedAttribute(string(status))
		return
	}
}

// NewOTelMetrics registers the pool instruments with the global meter
// provider. Histogram records are handed to workers goroutines through a
// channel of bufferSize entries; records are dropped when it is full.
func NewOTelMetrics(ctx context.Context, workers int, bufferSize int) (*otelMetrics, error) {
	ch := make(chan histogramRecord, bufferSize)
	var wg sync.WaitGroup
	startSampledLogging(ctx)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for record := range ch {
				if record.attributes != nil {
					record.instrument.Record(record.ctx, record.value, record.attributes)
				} else {
					record.instrument.Record(record.ctx, record.value)
				}
			}
		}()
	}
	meter := otel.Meter("threadpool")
	var poolActiveWorkersAtomic atomic.Int64

	var poolPendingTasksAtomic atomic.Int64

	var taskOutcomeCountOutcomeDiscardedAtomic,
		taskOutcomeCountOutcomeFailedAtomic,
		taskOutcomeCountOutcomePanickedAtomic,
		taskOutcomeCountOutcomeRemovedAtomic,
		taskOutcomeCountOutcomeSucceededAtomic atomic.Int64

	var taskSubmitCountStatusAcceptedAtomic,
		taskSubmitCountStatusRejectedAtomic atomic.Int64

	_, err0 := meter.Int64ObservableUpDownCounter("pool/active_workers",
		metric.WithDescription("The number of workers currently executing a task."),
		metric.WithUnit(""),
		metric.WithInt64Callback(func(_ context.Context, obsrv metric.Int64Observer) error {
			observeUpDownCounter(obsrv, &poolActiveWorkersAtomic)
			return nil
		}))

	_, err1 := meter.Int64ObservableUpDownCounter("pool/pending_tasks",
		metric.WithDescription("The number of accepted tasks not yet claimed by a worker."),
		metric.WithUnit(""),
		metric.WithInt64Callback(func(_ context.Context, obsrv metric.Int64Observer) error {
			observeUpDownCounter(obsrv, &poolPendingTasksAtomic)
			return nil
		}))

	taskExecutionLatency, err2 := meter.Int64Histogram("task/execution_latency",
		metric.WithDescription("The cumulative distribution of task execution latencies, along with the outcome: succeeded, failed or panicked."),
		metric.WithUnit("us"),
		metric.WithExplicitBucketBoundaries(latencyBucketsUs...))

	_, err3 := meter.Int64ObservableCounter("task/outcome_count",
		metric.WithDescription("The cumulative number of tasks that reached a final state, along with the outcome."),
		metric.WithUnit(""),
		metric.WithInt64Callback(func(_ context.Context, obsrv metric.Int64Observer) error {
			conditionallyObserve(obsrv, &taskOutcomeCountOutcomeDiscardedAtomic, taskOutcomeCountOutcomeDiscardedAttrSet)
			conditionallyObserve(obsrv, &taskOutcomeCountOutcomeFailedAtomic, taskOutcomeCountOutcomeFailedAttrSet)
			conditionallyObserve(obsrv, &taskOutcomeCountOutcomePanickedAtomic, taskOutcomeCountOutcomePanickedAttrSet)
			conditionallyObserve(obsrv, &taskOutcomeCountOutcomeRemovedAtomic, taskOutcomeCountOutcomeRemovedAttrSet)
			conditionallyObserve(obsrv, &taskOutcomeCountOutcomeSucceededAtomic, taskOutcomeCountOutcomeSucceededAttrSet)
			return nil
		}))

	taskQueueLatency, err4 := meter.Int64Histogram("task/queue_latency",
		metric.WithDescription("The cumulative distribution of the time tasks spent in the queue before a worker claimed them."),
		metric.WithUnit("us"),
		metric.WithExplicitBucketBoundaries(latencyBucketsUs...))

	_, err5 := meter.Int64ObservableCounter("task/submit_count",
		metric.WithDescription("The cumulative number of submissions, along with the status: accepted or rejected."),
		metric.WithUnit(""),
		metric.WithInt64Callback(func(_ context.Context, obsrv metric.Int64Observer) error {
			conditionallyObserve(obsrv, &taskSubmitCountStatusAcceptedAtomic, taskSubmitCountStatusAcceptedAttrSet)
			conditionallyObserve(obsrv, &taskSubmitCountStatusRejectedAtomic, taskSubmitCountStatusRejectedAttrSet)
			return nil
		}))

	errs := []error{err0, err1, err2, err3, err4, err5}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &otelMetrics{
		ch:                                     ch,
		wg:                                     &wg,
		poolActiveWorkersAtomic:                &poolActiveWorkersAtomic,
		poolPendingTasksAtomic:                 &poolPendingTasksAtomic,
		taskExecutionLatency:                   taskExecutionLatency,
		taskOutcomeCountOutcomeDiscardedAtomic: &taskOutcomeCountOutcomeDiscardedAtomic,
		taskOutcomeCountOutcomeFailedAtomic:    &taskOutcomeCountOutcomeFailedAtomic,
		taskOutcomeCountOutcomePanickedAtomic:  &taskOutcomeCountOutcomePanickedAtomic,
		taskOutcomeCountOutcomeRemovedAtomic:   &taskOutcomeCountOutcomeRemovedAtomic,
		taskOutcomeCountOutcomeSucceededAtomic: &taskOutcomeCountOutcomeSucceededAtomic,
		taskQueueLatency:                       taskQueueLatency,
		taskSubmitCountStatusAcceptedAtomic:    &taskSubmitCountStatusAcceptedAtomic,
		taskSubmitCountStatusRejectedAtomic:    &taskSubmitCountStatusRejectedAtomic,
	}, nil
}

// Close stops the histogram workers after they have recorded everything
// already buffered. The handle must not be used afterwards.
func (o *otelMetrics) Close() {
	close(o.ch)
	o.wg.Wait()
}

func conditionallyObserve(obsrv metric.Int64Observer, counter *atomic.Int64, obsrvOptions ...metric.ObserveOption) {
	if val := counter.Load(); val > 0 {
		obsrv.Observe(val, obsrvOptions...)
	}
}

func observeUpDownCounter(obsrv metric.Int64Observer, counter *atomic.Int64, obsrvOptions ...metric.ObserveOption) {
	obsrv.Observe(counter.Load(), obsrvOptions...)
}

func updateUnrecognizedAttribute(newValue string) {
	unrecognizedAttr.CompareAndSwap("", newValue)
}

// startSampledLogging starts a goroutine that logs unrecognized attributes periodically.
func startSampledLogging(ctx context.Context) {
	// Init the atomic.Value
	unrecognizedAttr.Store("")

	go func() {
		ticker := time.NewTicker(logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logUnrecognizedAttribute()
			}
		}
	}()
}

// logUnrecognizedAttribute retrieves and logs any unrecognized attributes.
func logUnrecognizedAttribute() {
	// Atomically load and reset the attribute name, then generate a log
	// if an unrecognized attribute was encountered.
	if currentAttr := unrecognizedAttr.Swap("").(string); currentAttr != "" {
		logger.Tracef("Attribute %s is not declared", currentAttr)
	}
}
