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
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	AppName string `yaml:"app-name"`

	Debug DebugConfig `yaml:"debug"`

	Logging LoggingConfig `yaml:"logging"`

	Metrics MetricsConfig `yaml:"metrics"`

	Monitoring MonitoringConfig `yaml:"monitoring"`

	Pool PoolConfig `yaml:"pool"`

	Workload WorkloadConfig `yaml:"workload"`
}

type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`

	LogMutex bool `yaml:"log-mutex"`
}

type LogRotateLoggingConfig struct {
	BackupFileCount int64 `yaml:"backup-file-count"`

	Compress bool `yaml:"compress"`

	MaxFileSizeMb int64 `yaml:"max-file-size-mb"`
}

type LoggingConfig struct {
	FilePath ResolvedPath `yaml:"file-path"`

	Format string `yaml:"format"`

	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`

	Severity LogSeverity `yaml:"severity"`
}

type MetricsConfig struct {
	BufferSize int64 `yaml:"buffer-size"`

	PrometheusPort int64 `yaml:"prometheus-port"`

	Workers int64 `yaml:"workers"`
}

type MonitoringConfig struct {
	ExperimentalTracingMode string `yaml:"experimental-tracing-mode"`
}

type PoolConfig struct {
	DrainPolicy DrainPolicy `yaml:"drain-policy"`

	LockOsThread bool `yaml:"lock-os-thread"`

	WorkerCount int64 `yaml:"worker-count"`
}

type WorkloadConfig struct {
	FailureRate float64 `yaml:"failure-rate"`

	PanicRate float64 `yaml:"panic-rate"`

	Producers int64 `yaml:"producers"`

	SubmitRate float64 `yaml:"submit-rate"`

	TaskCount int64 `yaml:"task-count"`

	TaskDuration time.Duration `yaml:"task-duration"`
}

// BindFlags registers every flag on flagSet and binds it to its config key in
// v so that values from the command line override the config file.
func BindFlags(v *viper.Viper, flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("app-name", "", "", "The application name reported in logs and telemetry.")

	err = v.BindPFlag("app-name", flagSet.Lookup("app-name"))
	if err != nil {
		return err
	}

	flagSet.BoolP("debug_invariants", "", false, "Panic when internal invariants of the pool are violated.")

	err = v.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug_invariants"))
	if err != nil {
		return err
	}

	flagSet.BoolP("debug_mutex", "", false, "Print debug messages when the pool mutex is held too long.")

	err = v.BindPFlag("debug.log-mutex", flagSet.Lookup("debug_mutex"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "The file for storing logs. When not provided, logs are printed to stdout.")

	err = v.BindPFlag("logging.file-path", flagSet.Lookup("log-file"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "json", "The format of the log file: 'text' or 'json'.")

	err = v.BindPFlag("logging.format", flagSet.Lookup("log-format"))
	if err != nil {
		return err
	}

	flagSet.IntP("log-rotate-backup-file-count", "", 10, "The maximum number of backup log files to retain after they have been rotated. 0 retains all backups.")

	err = v.BindPFlag("logging.log-rotate.backup-file-count", flagSet.Lookup("log-rotate-backup-file-count"))
	if err != nil {
		return err
	}

	flagSet.BoolP("log-rotate-compress", "", true, "Compress rotated log files using gzip.")

	err = v.BindPFlag("logging.log-rotate.compress", flagSet.Lookup("log-rotate-compress"))
	if err != nil {
		return err
	}

	flagSet.IntP("log-rotate-max-log-file-size-mb", "", 512, "The maximum size in megabytes that a log file can reach before it is rotated.")

	err = v.BindPFlag("logging.log-rotate.max-file-size-mb", flagSet.Lookup("log-rotate-max-log-file-size-mb"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", "info", "Specifies the logging severity expressed as one of [trace, debug, info, warning, error, off]")

	err = v.BindPFlag("logging.severity", flagSet.Lookup("log-severity"))
	if err != nil {
		return err
	}

	flagSet.IntP("metrics-buffer-size", "", 256, "The maximum number of histogram records buffered before new records are dropped.")

	err = v.BindPFlag("metrics.buffer-size", flagSet.Lookup("metrics-buffer-size"))
	if err != nil {
		return err
	}

	flagSet.IntP("metrics-workers", "", 3, "The number of goroutines recording histogram metrics.")

	err = v.BindPFlag("metrics.workers", flagSet.Lookup("metrics-workers"))
	if err != nil {
		return err
	}

	flagSet.IntP("prometheus-port", "", 0, "Expose Prometheus metrics endpoint on this port and a path of /metrics. 0 disables the endpoint.")

	err = v.BindPFlag("metrics.prometheus-port", flagSet.Lookup("prometheus-port"))
	if err != nil {
		return err
	}

	flagSet.StringP("experimental-tracing-mode", "", "", "Experimental: specify the tracing mode. Value can be '' (disabled) or 'stdout'.")

	err = v.BindPFlag("monitoring.experimental-tracing-mode", flagSet.Lookup("experimental-tracing-mode"))
	if err != nil {
		return err
	}

	flagSet.StringP("drain-policy", "", "drain", "What Stop does with tasks that no worker has claimed yet: 'drain' runs them, 'hard-stop' discards them.")

	err = v.BindPFlag("pool.drain-policy", flagSet.Lookup("drain-policy"))
	if err != nil {
		return err
	}

	flagSet.BoolP("lock-os-thread", "", false, "Pin every worker to its own operating-system thread.")

	err = v.BindPFlag("pool.lock-os-thread", flagSet.Lookup("lock-os-thread"))
	if err != nil {
		return err
	}

	flagSet.IntP("workers", "", 0, "The number of workers in the pool. 0 uses the number of CPUs.")

	err = v.BindPFlag("pool.worker-count", flagSet.Lookup("workers"))
	if err != nil {
		return err
	}

	flagSet.Float64P("failure-rate", "", 0, "Fraction of synthetic tasks that return an error, in [0, 1].")

	err = v.BindPFlag("workload.failure-rate", flagSet.Lookup("failure-rate"))
	if err != nil {
		return err
	}

	flagSet.Float64P("panic-rate", "", 0, "Fraction of synthetic tasks that panic, in [0, 1].")

	err = v.BindPFlag("workload.panic-rate", flagSet.Lookup("panic-rate"))
	if err != nil {
		return err
	}

	flagSet.IntP("producers", "", 1, "The number of goroutines submitting tasks concurrently.")

	err = v.BindPFlag("workload.producers", flagSet.Lookup("producers"))
	if err != nil {
		return err
	}

	flagSet.Float64P("submit-rate", "", 0, "Maximum number of submissions per second across all producers. 0 means unlimited.")

	err = v.BindPFlag("workload.submit-rate", flagSet.Lookup("submit-rate"))
	if err != nil {
		return err
	}

	flagSet.IntP("tasks", "", 100, "The number of synthetic tasks to submit.")

	err = v.BindPFlag("workload.task-count", flagSet.Lookup("tasks"))
	if err != nil {
		return err
	}

	flagSet.DurationP("task-duration", "", 10*time.Millisecond, "How long every synthetic task sleeps.")

	err = v.BindPFlag("workload.task-duration", flagSet.Lookup("task-duration"))
	if err != nil {
		return err
	}

	return nil
}
