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
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// LogSeverity represents the logging severity and can accept the following values
// "TRACE", "DEBUG", "INFO", "WARNING", "ERROR", "OFF"
type LogSeverity string

// Constants for all supported log severities.
const (
	TraceLogSeverity   LogSeverity = "TRACE"
	DebugLogSeverity   LogSeverity = "DEBUG"
	InfoLogSeverity    LogSeverity = "INFO"
	WarningLogSeverity LogSeverity = "WARNING"
	ErrorLogSeverity   LogSeverity = "ERROR"
	OffLogSeverity     LogSeverity = "OFF"
)

// severityRanking maps each level to an integer for validation and comparison.
var severityRanking = map[LogSeverity]int{
	TraceLogSeverity:   0,
	DebugLogSeverity:   1,
	InfoLogSeverity:    2,
	WarningLogSeverity: 3,
	ErrorLogSeverity:   4,
	OffLogSeverity:     5,
}

func (l *LogSeverity) UnmarshalText(text []byte) error {
	level := LogSeverity(strings.ToUpper(string(text)))
	if _, ok := severityRanking[level]; !ok {
		return fmt.Errorf("invalid log severity level: %s. Must be one of [TRACE, DEBUG, INFO, WARNING, ERROR, OFF]", text)
	}
	*l = level
	return nil
}

// Rank returns the integer representation of the severity rank.
// Returns -1 if the severity is unknown.
func (l LogSeverity) Rank() int {
	if rank, ok := severityRanking[l]; ok {
		return rank
	}
	return -1
}

// DrainPolicy decides what stopping a pool does with tasks that were accepted
// but not yet claimed by a worker.
type DrainPolicy string

const (
	// DrainToEmpty keeps the workers running until every accepted task has
	// been executed.
	DrainToEmpty DrainPolicy = "drain"

	// HardStop discards every unclaimed task as soon as the pool stops.
	HardStop DrainPolicy = "hard-stop"
)

func (d *DrainPolicy) UnmarshalText(text []byte) error {
	txtStr := string(text)
	policy := DrainPolicy(strings.ToLower(txtStr))
	v := []DrainPolicy{DrainToEmpty, HardStop}
	if !slices.Contains(v, policy) {
		return fmt.Errorf("invalid drain policy value: %s. It can only accept values in the list: %v", txtStr, v)
	}
	*d = policy
	return nil
}

// IsValid returns true if the DrainPolicy is one of the defined policies.
func (d DrainPolicy) IsValid() bool {
	return d == DrainToEmpty || d == HardStop
}

// ResolvedPath represents a file-path which is an absolute path. Relative
// paths are resolved against THREADPOOL_PARENT_PROCESS_DIR when it is set and
// against the working directory otherwise; a leading "~" expands to the home
// directory.
type ResolvedPath string

func (p *ResolvedPath) UnmarshalText(text []byte) error {
	path, err := getResolvedPath(string(text))
	if err != nil {
		return err
	}
	*p = ResolvedPath(path)
	return nil
}

func getResolvedPath(path string) (string, error) {
	if path == "" || filepath.IsAbs(path) {
		return path, nil
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("fetch home dir: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}

	if parentDir, ok := os.LookupEnv(ParentProcessDirEnv); ok && parentDir != "" {
		return filepath.Join(parentDir, path), nil
	}

	return filepath.Abs(path)
}
