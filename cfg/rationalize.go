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

// isSet interface is abstraction over the IsSet() method of viper, specially
// added to keep rationalize method simple.
type isSet interface {
	IsSet(string) bool
}

func resolveWorkerCount(c *PoolConfig) {
	if c.WorkerCount == 0 {
		c.WorkerCount = int64(DefaultWorkerCount())
	}
}

func resolveLoggingSeverity(v isSet, c *Config) {
	// Mutex debugging is only useful with trace logs, unless the user asked
	// for a severity explicitly.
	if c.Debug.LogMutex && !v.IsSet(LoggingSeverityConfigKey) {
		c.Logging.Severity = TraceLogSeverity
	}
}

// Rationalize updates the config fields based on the values of other fields.
func Rationalize(v isSet, c *Config) error {
	resolveWorkerCount(&c.Pool)
	resolveLoggingSeverity(v, c)

	if c.Pool.DrainPolicy == "" {
		c.Pool.DrainPolicy = DrainToEmpty
	}

	return nil
}
