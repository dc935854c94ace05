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
	"runtime"

	"gopkg.in/yaml.v3"
)

// DefaultWorkerCount is the pool size used when pool.worker-count is 0.
func DefaultWorkerCount() int {
	return max(1, runtime.NumCPU())
}

// IsMetricsEnabled reports whether any metric exporter is configured.
func IsMetricsEnabled(c *MetricsConfig) bool {
	return c.PrometheusPort > 0
}

// IsTracingEnabled reports whether spans should be exported.
func IsTracingEnabled(c *MonitoringConfig) bool {
	return c.ExperimentalTracingMode != TracingModeDisabled
}

// Stringify returns the YAML representation of the config, as it would be
// written in a config file.
func Stringify(c *Config) (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("error while marshaling the config: %w", err)
	}
	return string(out), nil
}
