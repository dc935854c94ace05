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

package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/googlecloudplatform/threadpool/cfg"
	"github.com/googlecloudplatform/threadpool/internal/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *cfg.Config {
	t.Helper()
	return &cfg.Config{
		AppName: "run-test",
		Logging: cfg.LoggingConfig{
			FilePath: cfg.ResolvedPath(filepath.Join(t.TempDir(), "threadpool.log")),
			Format:   cfg.TextLogFormat,
			Severity: cfg.InfoLogSeverity,
			LogRotate: cfg.LogRotateLoggingConfig{
				MaxFileSizeMb:   1,
				BackupFileCount: 1,
			},
		},
		Metrics: cfg.MetricsConfig{
			Workers:    1,
			BufferSize: 16,
		},
		Pool: cfg.PoolConfig{
			WorkerCount: 2,
			DrainPolicy: cfg.DrainToEmpty,
		},
		Workload: cfg.WorkloadConfig{
			TaskCount:   30,
			Producers:   3,
			FailureRate: 0.2,
			PanicRate:   0.1,
		},
	}
}

func TestRunWorkloadPrintsSummary(t *testing.T) {
	c := testConfig(t)
	var out bytes.Buffer

	err := runWorkloadWithOutput(c, &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "submitted: 30 (rejected: 0)")
	logs, err := os.ReadFile(string(c.Logging.FilePath))
	require.NoError(t, err)
	assert.Contains(t, string(logs), "run-test")
	assert.Contains(t, string(logs), "Thread pool stopped")
}

func TestRunWorkloadWithHardStop(t *testing.T) {
	c := testConfig(t)
	c.Pool.DrainPolicy = cfg.HardStop
	var out bytes.Buffer

	require.NoError(t, runWorkloadWithOutput(c, &out))

	// The workload waits for every task before stopping, so nothing is left
	// to discard.
	assert.Contains(t, out.String(), "discarded: 0")
}

func TestRunWorkloadRejectsUnwritableLogFile(t *testing.T) {
	c := testConfig(t)
	c.Logging.FilePath = cfg.ResolvedPath(filepath.Join(t.TempDir(), "missing", "dir", "threadpool.log"))

	err := runWorkloadWithOutput(c, &bytes.Buffer{})

	assert.ErrorContains(t, err, "init log file")
}

type fakePool struct {
	mu      sync.Mutex
	stops   int
	release chan struct{}
}

func (p *fakePool) Submit(string, workerpool.Task) (*workerpool.Handle, error) {
	return nil, workerpool.ErrPoolNotRunning
}

func (p *fakePool) Remove(*workerpool.Handle) (workerpool.Task, bool) {
	return nil, false
}

func (p *fakePool) Stop() error {
	p.mu.Lock()
	p.stops++
	first := p.stops == 1
	p.mu.Unlock()

	if !first {
		return workerpool.ErrPoolAlreadyStopped
	}
	<-p.release
	return nil
}

func (p *fakePool) Stats() workerpool.Stats {
	return workerpool.Stats{}
}

func TestStopperWaitsForTheFirstStop(t *testing.T) {
	pool := &fakePool{release: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	s := newStopper(pool, cancel)

	first := make(chan error, 1)
	go func() { first <- s.stop() }()
	assert.Eventually(t, func() bool {
		pool.mu.Lock()
		defer pool.mu.Unlock()
		return pool.stops == 1
	}, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- s.stop() }()
	select {
	case <-second:
		require.FailNow(t, "second stop returned before the pool stopped")
	case <-time.After(20 * time.Millisecond):
	}

	close(pool.release)
	assert.NoError(t, <-first)
	assert.NoError(t, <-second)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestSignalsDuringStopAreIgnored(t *testing.T) {
	pool := &fakePool{release: make(chan struct{})}
	_, cancel := context.WithCancel(context.Background())
	s := newStopper(pool, cancel)
	signalChan := make(chan os.Signal, 1)
	handlerDone := make(chan struct{})
	go func() {
		handleTerminatingSignals(s, signalChan)
		close(handlerDone)
	}()

	signalChan <- os.Interrupt
	assert.Eventually(t, func() bool {
		pool.mu.Lock()
		defer pool.mu.Unlock()
		return pool.stops == 1
	}, time.Second, time.Millisecond)
	// The handler keeps draining the channel while the pool stops.
	signalChan <- os.Interrupt
	signalChan <- os.Interrupt

	close(pool.release)
	select {
	case <-handlerDone:
	case <-time.After(time.Second):
		require.FailNow(t, "signal handler did not return after the pool stopped")
	}
	pool.mu.Lock()
	defer pool.mu.Unlock()
	assert.Equal(t, 1, pool.stops)
}

func TestSignalHandlerReturnsWhenPoolStopsWithoutSignal(t *testing.T) {
	pool := &fakePool{release: make(chan struct{})}
	close(pool.release)
	_, cancel := context.WithCancel(context.Background())
	s := newStopper(pool, cancel)
	handlerDone := make(chan struct{})
	go func() {
		handleTerminatingSignals(s, make(chan os.Signal, 1))
		close(handlerDone)
	}()

	require.NoError(t, s.stop())

	select {
	case <-handlerDone:
	case <-time.After(time.Second):
		require.FailNow(t, "signal handler did not return after the pool stopped")
	}
}
