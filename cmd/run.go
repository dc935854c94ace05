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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/googlecloudplatform/threadpool/cfg"
	"github.com/googlecloudplatform/threadpool/common"
	"github.com/googlecloudplatform/threadpool/internal/locker"
	"github.com/googlecloudplatform/threadpool/internal/logger"
	"github.com/googlecloudplatform/threadpool/internal/monitor"
	"github.com/googlecloudplatform/threadpool/internal/workerpool"
	"github.com/googlecloudplatform/threadpool/internal/workload"
	"github.com/googlecloudplatform/threadpool/metrics"
	"golang.org/x/sys/unix"
)

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// stopper stops the pool at most once, from either a signal or the end of
// the workload, and lets both callers wait for it.
type stopper struct {
	pool    workerpool.WorkerPool
	cancel  context.CancelFunc
	stopped chan struct{}
	err     error
}

func newStopper(pool workerpool.WorkerPool, cancel context.CancelFunc) *stopper {
	return &stopper{
		pool:    pool,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
}

// stop cancels production, stops the pool and waits until the pool is
// stopped, whoever stopped it.
func (s *stopper) stop() error {
	s.cancel()
	err := s.pool.Stop()
	if errors.Is(err, workerpool.ErrPoolAlreadyStopped) {
		<-s.stopped
		return s.err
	}

	s.err = err
	close(s.stopped)
	return err
}

func registerTerminatingSignalHandler(s *stopper) {
	// Register for SIGINT and SIGTERM.
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, unix.SIGTERM)

	go func() {
		defer signal.Stop(signalChan)
		handleTerminatingSignals(s, signalChan)
	}()
}

func signalName(sig os.Signal) string {
	switch sig {
	case unix.SIGTERM:
		return "SIGTERM"
	case os.Interrupt:
		return "SIGINT"
	}
	return "undefined"
}

// handleTerminatingSignals stops the pool on the first signal. Later signals
// are logged and ignored while the pool drains. It returns once the pool has
// stopped, whichever path stopped it.
func handleTerminatingSignals(s *stopper, signalChan <-chan os.Signal) {
	stopping := false
	for {
		select {
		case sig := <-signalChan:
			sigName := signalName(sig)
			if stopping {
				logger.Warnf("Received %s while the pool is stopping, ignoring it.", sigName)
				continue
			}
			stopping = true
			logger.Infof("Received %s, stopping the pool...", sigName)

			go func() {
				if err := s.stop(); err != nil {
					logger.Errorf("Failed to stop the pool in response to %s: %v", sigName, err)
				} else {
					logger.Infof("Pool stopped in response to %s.", sigName)
				}
			}()
		case <-s.stopped:
			return
		}
	}
}

func newMetricHandle(ctx context.Context, c *cfg.Config) (metrics.MetricHandle, func()) {
	if !cfg.IsMetricsEnabled(&c.Metrics) {
		return metrics.NewNoopMetrics(), func() {}
	}

	mh, err := metrics.NewOTelMetrics(ctx, int(c.Metrics.Workers), int(c.Metrics.BufferSize))
	if err != nil {
		logger.Errorf("Failed to create metric handle, metrics are disabled: %v", err)
		return metrics.NewNoopMetrics(), func() {}
	}
	return mh, mh.Close
}

////////////////////////////////////////////////////////////////////////
// Run
////////////////////////////////////////////////////////////////////////

func runWorkload(c *cfg.Config) error {
	return runWorkloadWithOutput(c, os.Stdout)
}

func runWorkloadWithOutput(c *cfg.Config, out io.Writer) (err error) {
	if c.Debug.ExitOnInvariantViolation {
		locker.EnableInvariantsCheck()
	}
	if c.Debug.LogMutex {
		locker.EnableDebugMessages()
	}

	logger.SetLogFormat(c.Logging.Format)
	if err = logger.InitLogFile(c.Logging); err != nil {
		return fmt.Errorf("init log file: %w", err)
	}
	defer logger.Close()

	logger.Infof("Start threadpool/%s for app %q", common.GetVersion(), c.AppName)
	if cfgStr, strErr := cfg.Stringify(c); strErr != nil {
		logger.Warnf("failed to stringify config: %v", strErr)
	} else {
		logger.Info("threadpool config", "config", cfgStr)
	}

	runner := workload.NewRunner(c.Workload)
	ctx := context.Background()

	var metricExporterShutdownFn common.ShutdownFn
	if cfg.IsMetricsEnabled(&c.Metrics) {
		metricExporterShutdownFn = monitor.SetupOTelMetricExporters(ctx, c, runner.RunID())
	}
	shutdownTracingFn := monitor.SetupTracing(ctx, c, runner.RunID())
	shutdownFn := common.JoinShutdownFunc(metricExporterShutdownFn, shutdownTracingFn)
	defer func() {
		if shutdownErr := shutdownFn(ctx); shutdownErr != nil {
			logger.Errorf("Error while shutting down telemetry exporters: %v", shutdownErr)
		}
	}()

	metricHandle, closeMetrics := newMetricHandle(ctx, c)
	pool, err := workerpool.NewThreadPool(&c.Pool, metricHandle)
	if err != nil {
		closeMetrics()
		return fmt.Errorf("create pool: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := newStopper(pool, cancel)
	registerTerminatingSignalHandler(s)

	report, runErr := runner.Run(runCtx, pool)
	stopErr := s.stop()
	// The pool has stopped, so no more records reach the handle.
	closeMetrics()

	if report != nil {
		stats := pool.Stats()
		logger.Infof("Pool stats: %+v", stats)
		if writeErr := report.Snapshot().Write(out); writeErr != nil {
			logger.Warnf("failed to write the summary: %v", writeErr)
		}
	}
	return errors.Join(runErr, stopErr)
}
