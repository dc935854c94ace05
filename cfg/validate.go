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

package cfg

import (
	"fmt"
	"math"
)

const (
	// MaxSupportedWorkerCount bounds pool.worker-count so that the pool never
	// tries to spawn an absurd number of goroutines by mistake.
	MaxSupportedWorkerCount = math.MaxUint16
)

func isValidLogRotateConfig(config *LogRotateLoggingConfig) error {
	if config.MaxFileSizeMb <= 0 {
		return fmt.Errorf("max-file-size-mb should be atleast 1")
	}
	if config.BackupFileCount < 0 {
		return fmt.Errorf("backup-file-count should be 0 (to retain all backup files) or a positive value")
	}
	return nil
}

func isValidLogFormat(format string) error {
	if format != TextLogFormat && format != JSONLogFormat {
		return fmt.Errorf("invalid log format: %q, must be one of [%s, %s]", format, TextLogFormat, JSONLogFormat)
	}
	return nil
}

func isValidPoolConfig(c *PoolConfig) error {
	if c.WorkerCount < 0 {
		return fmt.Errorf("worker-count can't be negative")
	}
	if c.WorkerCount > MaxSupportedWorkerCount {
		return fmt.Errorf("worker-count is too high to be supported. Max is %d", MaxSupportedWorkerCount)
	}
	if !c.DrainPolicy.IsValid() {
		return fmt.Errorf("invalid drain-policy: %q", c.DrainPolicy)
	}
	return nil
}

func isValidRate(name string, r float64) error {
	if math.IsNaN(r) || r < 0 || r > 1 {
		return fmt.Errorf("%s should be in the range [0, 1], got %v", name, r)
	}
	return nil
}

func isValidWorkloadConfig(c *WorkloadConfig) error {
	if c.TaskCount < 0 {
		return fmt.Errorf("task-count can't be negative")
	}
	if c.Producers < 1 {
		return fmt.Errorf("producers should be atleast 1")
	}
	if c.TaskDuration < 0 {
		return fmt.Errorf("task-duration can't be negative")
	}
	if c.SubmitRate < 0 {
		return fmt.Errorf("submit-rate can't be negative")
	}
	if err := isValidRate("failure-rate", c.FailureRate); err != nil {
		return err
	}
	if err := isValidRate("panic-rate", c.PanicRate); err != nil {
		return err
	}
	if c.FailureRate+c.PanicRate > 1 {
		return fmt.Errorf("failure-rate and panic-rate together can't exceed 1")
	}
	return nil
}

func isValidMetricsConfig(c *MetricsConfig) error {
	if c.PrometheusPort < 0 || c.PrometheusPort > math.MaxUint16 {
		return fmt.Errorf("prometheus-port should be in the range [0, 65535]")
	}
	if c.Workers < 1 {
		return fmt.Errorf("metrics workers should be atleast 1")
	}
	if c.BufferSize < 1 {
		return fmt.Errorf("metrics buffer-size should be atleast 1")
	}
	return nil
}

func isValidTracingMode(mode string) error {
	if mode != TracingModeDisabled && mode != TracingModeStdout {
		return fmt.Errorf("unsupported tracing mode: %q", mode)
	}
	return nil
}

// ValidateConfig returns a non-nil error if the config is invalid.
func ValidateConfig(config *Config) error {
	var err error

	if err = isValidLogRotateConfig(&config.Logging.LogRotate); err != nil {
		return fmt.Errorf("error parsing log-rotate config: %w", err)
	}

	if err = isValidLogFormat(config.Logging.Format); err != nil {
		return fmt.Errorf("error parsing logging config: %w", err)
	}

	if err = isValidPoolConfig(&config.Pool); err != nil {
		return fmt.Errorf("error parsing pool config: %w", err)
	}

	if err = isValidWorkloadConfig(&config.Workload); err != nil {
		return fmt.Errorf("error parsing workload config: %w", err)
	}

	if err = isValidMetricsConfig(&config.Metrics); err != nil {
		return fmt.Errorf("error parsing metrics config: %w", err)
	}

	if err = isValidTracingMode(config.Monitoring.ExperimentalTracingMode); err != nil {
		return fmt.Errorf("error parsing monitoring config: %w", err)
	}

	return nil
}
