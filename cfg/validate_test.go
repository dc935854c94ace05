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
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Format:   JSONLogFormat,
			Severity: InfoLogSeverity,
			LogRotate: LogRotateLoggingConfig{
				BackupFileCount: 0,
				Compress:        false,
				MaxFileSizeMb:   1,
			},
		},
		Metrics: MetricsConfig{
			BufferSize: 256,
			Workers:    3,
		},
		Pool: PoolConfig{
			DrainPolicy: DrainToEmpty,
			WorkerCount: 4,
		},
		Workload: WorkloadConfig{
			Producers:    1,
			TaskCount:    10,
			TaskDuration: time.Millisecond,
		},
	}
}

func TestValidateConfig(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "zero workers is resolved later",
			mutate:  func(c *Config) { c.Pool.WorkerCount = 0 },
			wantErr: false,
		},
		{
			name:    "hard stop",
			mutate:  func(c *Config) { c.Pool.DrainPolicy = HardStop },
			wantErr: false,
		},
		{
			name:    "negative workers",
			mutate:  func(c *Config) { c.Pool.WorkerCount = -1 },
			wantErr: true,
		},
		{
			name:    "too many workers",
			mutate:  func(c *Config) { c.Pool.WorkerCount = MaxSupportedWorkerCount + 1 },
			wantErr: true,
		},
		{
			name:    "unknown drain policy",
			mutate:  func(c *Config) { c.Pool.DrainPolicy = "eventually" },
			wantErr: true,
		},
		{
			name:    "zero max file size",
			mutate:  func(c *Config) { c.Logging.LogRotate.MaxFileSizeMb = 0 },
			wantErr: true,
		},
		{
			name:    "negative backup count",
			mutate:  func(c *Config) { c.Logging.LogRotate.BackupFileCount = -1 },
			wantErr: true,
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name:    "no producers",
			mutate:  func(c *Config) { c.Workload.Producers = 0 },
			wantErr: true,
		},
		{
			name:    "failure rate above one",
			mutate:  func(c *Config) { c.Workload.FailureRate = 1.5 },
			wantErr: true,
		},
		{
			name:    "panic rate NaN",
			mutate:  func(c *Config) { c.Workload.PanicRate = math.NaN() },
			wantErr: true,
		},
		{
			name: "combined fault rates above one",
			mutate: func(c *Config) {
				c.Workload.FailureRate = 0.6
				c.Workload.PanicRate = 0.6
			},
			wantErr: true,
		},
		{
			name:    "negative submit rate",
			mutate:  func(c *Config) { c.Workload.SubmitRate = -1 },
			wantErr: true,
		},
		{
			name:    "negative task duration",
			mutate:  func(c *Config) { c.Workload.TaskDuration = -time.Second },
			wantErr: true,
		},
		{
			name:    "prometheus port out of range",
			mutate:  func(c *Config) { c.Metrics.PrometheusPort = 70000 },
			wantErr: true,
		},
		{
			name:    "zero metric workers",
			mutate:  func(c *Config) { c.Metrics.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "stdout tracing",
			mutate:  func(c *Config) { c.Monitoring.ExperimentalTracingMode = TracingModeStdout },
			wantErr: false,
		},
		{
			name:    "unknown tracing mode",
			mutate:  func(c *Config) { c.Monitoring.ExperimentalTracingMode = "gcptrace" },
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(c)

			err := ValidateConfig(c)

			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
