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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupOTel(ctx context.Context, t *testing.T) (*otelMetrics, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	otel.SetMeterProvider(provider)

	m, err := NewOTelMetrics(ctx, 10, 100)
	require.NoError(t, err)
	return m, reader
}

// gatherNonZeroCounterMetrics collects all non-zero Sum[int64] metrics from
// the reader, keyed by metric name and then by encoded attributes.
func gatherNonZeroCounterMetrics(ctx context.Context, t *testing.T, rd *metric.ManualReader) map[string]map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	err := rd.Collect(ctx, &rm)
	require.NoError(t, err)

	results := make(map[string]map[string]int64)
	encoder := attribute.DefaultEncoder()

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}

			metricMap := make(map[string]int64)
			for _, dp := range sum.DataPoints {
				if dp.Value == 0 {
					continue
				}
				metricMap[dp.Attributes.Encoded(encoder)] = dp.Value
			}

			if len(metricMap) > 0 {
				results[m.Name] = metricMap
			}
		}
	}

	return results
}

func TestTaskSubmitCount(t *testing.T) {
	tests := []struct {
		name     string
		f        func(m *otelMetrics)
		expected map[attribute.Set]int64
	}{
		{
			name: "status_accepted",
			f: func(m *otelMetrics) {
				m.TaskSubmitCount(5, SubmitStatusAcceptedAttr)
			},
			expected: map[attribute.Set]int64{
				attribute.NewSet(attribute.String("status", "accepted")): 5,
			},
		},
		{
			name: "status_rejected",
			f: func(m *otelMetrics) {
				m.TaskSubmitCount(2, SubmitStatusRejectedAttr)
			},
			expected: map[attribute.Set]int64{
				attribute.NewSet(attribute.String("status", "rejected")): 2,
			},
		},
		{
			name: "multiple_attributes_summed",
			f: func(m *otelMetrics) {
				m.TaskSubmitCount(5, SubmitStatusAcceptedAttr)
				m.TaskSubmitCount(1, SubmitStatusRejectedAttr)
				m.TaskSubmitCount(10, SubmitStatusAcceptedAttr)
			},
			expected: map[attribute.Set]int64{
				attribute.NewSet(attribute.String("status", "accepted")): 15,
				attribute.NewSet(attribute.String("status", "rejected")): 1,
			},
		},
		{
			name: "negative_increment",
			f: func(m *otelMetrics) {
				m.TaskSubmitCount(-5, SubmitStatusAcceptedAttr)
				m.TaskSubmitCount(2, SubmitStatusAcceptedAttr)
			},
			expected: map[attribute.Set]int64{
				attribute.NewSet(attribute.String("status", "accepted")): 2,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			encoder := attribute.DefaultEncoder()
			m, rd := setupOTel(ctx, t)

			tc.f(m)
			metrics := gatherNonZeroCounterMetrics(ctx, t, rd)
			metric, ok := metrics["task/submit_count"]
			require.True(t, ok, "task/submit_count metric not found")

			expectedMap := make(map[string]int64)
			for k, v := range tc.expected {
				expectedMap[k.Encoded(encoder)] = v
			}
			assert.Equal(t, expectedMap, metric)
		})
	}
}

func TestTaskOutcomeCount(t *testing.T) {
	ctx := context.Background()
	m, rd := setupOTel(ctx, t)

	m.TaskOutcomeCount(3, TaskOutcomeSucceededAttr)
	m.TaskOutcomeCount(2, TaskOutcomeFailedAttr)
	m.TaskOutcomeCount(1, TaskOutcomePanickedAttr)
	m.TaskOutcomeCount(4, TaskOutcomeRemovedAttr)
	m.TaskOutcomeCount(6, TaskOutcomeDiscardedAttr)
	m.TaskOutcomeCount(1, TaskOutcome("exploded"))

	VerifyCounterMetric(t, ctx, rd, "task/outcome_count", attribute.NewSet(attribute.String("outcome", "succeeded")), 3)
	VerifyCounterMetric(t, ctx, rd, "task/outcome_count", attribute.NewSet(attribute.String("outcome", "failed")), 2)
	VerifyCounterMetric(t, ctx, rd, "task/outcome_count", attribute.NewSet(attribute.String("outcome", "panicked")), 1)
	VerifyCounterMetric(t, ctx, rd, "task/outcome_count", attribute.NewSet(attribute.String("outcome", "removed")), 4)
	VerifyCounterMetric(t, ctx, rd, "task/outcome_count", attribute.NewSet(attribute.String("outcome", "discarded")), 6)
	assert.Equal(t, "exploded", unrecognizedAttr.Load())
}

func TestPoolUpDownCounters(t *testing.T) {
	ctx := context.Background()
	m, rd := setupOTel(ctx, t)

	m.PoolPendingTasks(3)
	m.PoolPendingTasks(-1)
	m.PoolActiveWorkers(2)
	m.PoolActiveWorkers(-2)

	VerifyCounterMetric(t, ctx, rd, "pool/pending_tasks", *attribute.EmptySet(), 2)
	VerifyCounterMetric(t, ctx, rd, "pool/active_workers", *attribute.EmptySet(), 0)
}

func TestTaskQueueLatency(t *testing.T) {
	ctx := context.Background()
	m, rd := setupOTel(ctx, t)

	m.TaskQueueLatency(ctx, 100*time.Microsecond)
	m.TaskQueueLatency(ctx, 2*time.Millisecond)
	m.Close()

	VerifyHistogramMetric(t, ctx, rd, "task/queue_latency", *attribute.EmptySet(), 2)
}

func TestTaskExecutionLatency(t *testing.T) {
	ctx := context.Background()
	m, rd := setupOTel(ctx, t)

	m.TaskExecutionLatency(ctx, time.Millisecond, TaskOutcomeSucceededAttr)
	m.TaskExecutionLatency(ctx, time.Millisecond, TaskOutcomeSucceededAttr)
	m.TaskExecutionLatency(ctx, 3*time.Millisecond, TaskOutcomeFailedAttr)
	m.TaskExecutionLatency(ctx, 4*time.Millisecond, TaskOutcomePanickedAttr)
	// Removed tasks never execute, so there is no latency to record.
	m.TaskExecutionLatency(ctx, 5*time.Millisecond, TaskOutcomeRemovedAttr)
	m.Close()

	VerifyHistogramMetric(t, ctx, rd, "task/execution_latency", attribute.NewSet(attribute.String("outcome", "succeeded")), 2)
	VerifyHistogramMetric(t, ctx, rd, "task/execution_latency", attribute.NewSet(attribute.String("outcome", "failed")), 1)
	VerifyHistogramMetric(t, ctx, rd, "task/execution_latency", attribute.NewSet(attribute.String("outcome", "panicked")), 1)
}

func TestLogUnrecognizedAttributeResets(t *testing.T) {
	unrecognizedAttr.Store("")
	updateUnrecognizedAttribute("first")
	updateUnrecognizedAttribute("second")
	assert.Equal(t, "first", unrecognizedAttr.Load())

	logUnrecognizedAttribute()

	assert.Equal(t, "", unrecognizedAttr.Load())
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoopMetrics()

	assert.NotPanics(t, func() {
		m.TaskSubmitCount(1, SubmitStatusAcceptedAttr)
		m.TaskOutcomeCount(1, TaskOutcomeFailedAttr)
		m.TaskQueueLatency(context.Background(), time.Second)
		m.TaskExecutionLatency(context.Background(), time.Second, TaskOutcomeSucceededAttr)
		m.PoolPendingTasks(1)
		m.PoolActiveWorkers(-1)
		Flush(m)
	})
}
