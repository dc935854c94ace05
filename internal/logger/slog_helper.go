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

package logger

import (
	"log/slog"

	"github.com/googlecloudplatform/threadpool/cfg"
)

const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	// LevelOff is above every other level, so that nothing is logged.
	LevelOff = slog.Level(12)

	messageKey   = "message"
	severityKey  = "severity"
	timestampKey = "timestamp"

	textTimeLayout = "01/02/2006 15:04:05.000000"
)

var levelNames = map[slog.Level]string{
	LevelTrace: cfg.TRACE,
	LevelDebug: cfg.DEBUG,
	LevelInfo:  cfg.INFO,
	LevelWarn:  cfg.WARNING,
	LevelError: cfg.ERROR,
	LevelOff:   cfg.OFF,
}

func setLoggingLevel(level string, programLevel *slog.LevelVar) {
	switch level {
	// logs having severity >= the configured value will be logged.
	case cfg.TRACE:
		programLevel.Set(LevelTrace)
	case cfg.DEBUG:
		programLevel.Set(LevelDebug)
	case cfg.INFO:
		programLevel.Set(LevelInfo)
	case cfg.WARNING:
		programLevel.Set(LevelWarn)
	case cfg.ERROR:
		programLevel.Set(LevelError)
	case cfg.OFF:
		programLevel.Set(LevelOff)
	}
}

// getHandlerOptions renames the built-in attributes so that the output is
// understood by structured log collectors: time becomes timestamp, level
// becomes severity and msg becomes message (with the prefix applied).
func getHandlerOptions(levelVar *slog.LevelVar, prefix string, format string) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: levelVar,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}

			switch a.Key {
			case slog.TimeKey:
				t := a.Value.Time()
				if format == cfg.TextLogFormat {
					a.Value = slog.StringValue(t.Format(textTimeLayout))
					return a
				}
				return slog.Group(timestampKey,
					slog.Int64("seconds", t.Unix()),
					slog.Int("nanos", t.Nanosecond()))

			case slog.LevelKey:
				a.Key = severityKey
				level := a.Value.Any().(slog.Level)
				name, ok := levelNames[level]
				if !ok {
					name = level.String()
				}
				a.Value = slog.StringValue(name)

			case slog.MessageKey:
				a.Key = messageKey
				a.Value = slog.StringValue(prefix + a.Value.String())
			}
			return a
		},
	}
}
