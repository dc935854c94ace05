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

package workload

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/googlecloudplatform/threadpool/cfg"
	"github.com/googlecloudplatform/threadpool/internal/locker"
	"github.com/googlecloudplatform/threadpool/internal/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	locker.EnableInvariantsCheck()
}

func newPool(t *testing.T, workers int64, policy cfg.DrainPolicy) *workerpool.ThreadPool {
	t.Helper()
	p, err := workerpool.NewThreadPool(&cfg.PoolConfig{WorkerCount: workers, DrainPolicy: policy}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Stop() })
	return p
}

// rejectingPool refuses every submission after the first accepted ones.
type rejectingPool struct {
	mu     sync.Mutex
	accept int
	inner  Submitter
}

func (p *rejectingPool) Submit(name string, task workerpool.Task) (*workerpool.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accept == 0 {
		return nil, workerpool.ErrPoolNotRunning
	}
	p.accept--
	return p.inner.Submit(name, task)
}

func TestShare(t *testing.T) {
	testCases := []struct {
		total     int64
		producers int
		expected  []int64
	}{
		{total: 10, producers: 1, expected: []int64{10}},
		{total: 10, producers: 3, expected: []int64{4, 3, 3}},
		{total: 2, producers: 4, expected: []int64{1, 1, 0, 0}},
		{total: 0, producers: 2, expected: []int64{0, 0}},
	}

	for _, tc := range testCases {
		var got []int64
		var sum int64
		for i := range tc.producers {
			got = append(got, share(tc.total, tc.producers, i))
			sum += got[i]
		}
		assert.Equal(t, tc.expected, got)
		assert.Equal(t, tc.total, sum)
	}
}

func TestTaskFactoryRates(t *testing.T) {
	testCases := []struct {
		name        string
		failureRate float64
		panicRate   float64
	}{
		{name: "no faults", failureRate: 0, panicRate: 0},
		{name: "all fail", failureRate: 1, panicRate: 0},
		{name: "all panic", failureRate: 0, panicRate: 1},
		{name: "mixed", failureRate: 0.3, panicRate: 0.2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newTaskFactory(0, tc.failureRate, tc.panicRate, 42)
			const n = 10000
			var failed, panicked int
			for range n {
				task := f.next()
				assert.False(t, task.fail && task.panic)
				if task.fail {
					failed++
				}
				if task.panic {
					panicked++
				}
			}

			assert.InDelta(t, tc.failureRate, float64(failed)/n, 0.03)
			assert.InDelta(t, tc.panicRate, float64(panicked)/n, 0.03)
		})
	}
}

func TestSleepTask(t *testing.T) {
	assert.NoError(t, (&sleepTask{}).Execute())
	assert.ErrorIs(t, (&sleepTask{fail: true}).Execute(), errSynthetic)
	assert.PanicsWithValue(t, "synthetic task panic", func() { _ = (&sleepTask{panic: true}).Execute() })

	start := time.Now()
	require.NoError(t, (&sleepTask{duration: 5 * time.Millisecond}).Execute())
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestRunCountsEveryOutcome(t *testing.T) {
	pool := newPool(t, 4, cfg.DrainToEmpty)
	r := NewRunner(cfg.WorkloadConfig{
		TaskCount:   500,
		Producers:   5,
		FailureRate: 0.2,
		PanicRate:   0.1,
	})

	report, err := r.Run(context.Background(), pool)
	require.NoError(t, err)
	require.NoError(t, pool.Stop())

	s := report.Snapshot()
	assert.Equal(t, r.RunID(), s.RunID)
	assert.Equal(t, int64(500), s.Submitted)
	assert.Equal(t, int64(500), s.Finished())
	assert.Positive(t, s.Failed)
	assert.Positive(t, s.Panicked)
	assert.Zero(t, s.Rejected)
	stats := pool.Stats()
	assert.Equal(t, uint64(s.Succeeded), stats.Succeeded)
	assert.Equal(t, uint64(s.Failed), stats.Failed)
	assert.Equal(t, uint64(s.Panicked), stats.Panicked)
}

func TestRunStopsProducingWhenPoolStops(t *testing.T) {
	pool := newPool(t, 2, cfg.DrainToEmpty)
	r := NewRunner(cfg.WorkloadConfig{TaskCount: 100, Producers: 2})

	report, err := r.Run(context.Background(), &rejectingPool{accept: 10, inner: pool})

	require.NoError(t, err)
	s := report.Snapshot()
	assert.Equal(t, int64(10), s.Submitted)
	assert.Equal(t, int64(10), s.Succeeded)
	// Each producer gives up at its first rejection.
	assert.Equal(t, int64(2), s.Rejected)
}

func TestRunHonoursCancellation(t *testing.T) {
	pool := newPool(t, 2, cfg.DrainToEmpty)
	r := NewRunner(cfg.WorkloadConfig{TaskCount: 1000, Producers: 3})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := r.Run(ctx, pool)

	require.NoError(t, err)
	assert.Zero(t, report.Snapshot().Submitted)
}

func TestRunWithSubmitRate(t *testing.T) {
	pool := newPool(t, 2, cfg.DrainToEmpty)
	r := NewRunner(cfg.WorkloadConfig{TaskCount: 6, Producers: 2, SubmitRate: 100})

	start := time.Now()
	report, err := r.Run(context.Background(), pool)

	require.NoError(t, err)
	assert.Equal(t, int64(6), report.Snapshot().Finished())
	// One burst token, then 10ms per submission.
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRunAgainstHardStoppedPool(t *testing.T) {
	pool := newPool(t, 1, cfg.HardStop)
	r := NewRunner(cfg.WorkloadConfig{TaskCount: 50, Producers: 1, TaskDuration: 2 * time.Millisecond})
	done := make(chan *Report, 1)
	go func() {
		report, err := r.Run(context.Background(), pool)
		assert.NoError(t, err)
		done <- report
	}()

	assert.Eventually(t, func() bool {
		return pool.Stats().Submitted >= 10
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, pool.Stop())

	s := (<-done).Snapshot()
	assert.Equal(t, s.Submitted, s.Finished())
	assert.Equal(t, int64(pool.Stats().Discarded), s.Discarded)
}

func TestSummaryWrite(t *testing.T) {
	s := Summary{
		RunID:     "run-1",
		Elapsed:   1500 * time.Millisecond,
		Submitted: 10,
		Rejected:  1,
		Succeeded: 7,
		Failed:    1,
		Panicked:  1,
		Removed:   1,
	}
	var buf bytes.Buffer

	require.NoError(t, s.Write(&buf))

	out := buf.String()
	assert.Contains(t, out, "run run-1 finished in 1.5s")
	assert.Contains(t, out, "submitted: 10 (rejected: 1)")
	assert.Contains(t, out, "panicked:  1")
	assert.Equal(t, int64(10), s.Finished())
}
