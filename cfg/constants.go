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

const (
	// Logging-level constants

	TRACE   string = "TRACE"
	DEBUG   string = "DEBUG"
	INFO    string = "INFO"
	WARNING string = "WARNING"
	ERROR   string = "ERROR"
	OFF     string = "OFF"
)

const (
	// TextLogFormat prints logs as key=value pairs.
	TextLogFormat = "text"
	// JSONLogFormat prints one JSON object per log line.
	JSONLogFormat = "json"
)

const (
	// TracingModeDisabled turns tracing off.
	TracingModeDisabled = ""
	// TracingModeStdout pretty-prints finished spans to stdout.
	TracingModeStdout = "stdout"
)

const (
	// ParentProcessDirEnv, when set, is the directory that relative paths in
	// the config are resolved against.
	ParentProcessDirEnv = "THREADPOOL_PARENT_PROCESS_DIR"

	// PoolWorkerCountConfigKey is the config key of the number of workers.
	PoolWorkerCountConfigKey = "pool.worker-count"

	// LoggingSeverityConfigKey is the config key of the log severity.
	LoggingSeverityConfigKey = "logging.severity"
)
