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
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/googlecloudplatform/threadpool/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Syslog file contains logs from all different programmes running on the VM.
// ProgrammeName is prefixed to all the logs written by this binary so that
// they can be filtered out.
const ProgrammeName string = "threadpool"

var (
	defaultLoggerFactory *loggerFactory
	defaultLogger        *slog.Logger
)

// InitLogFile initializes the logger factory to create loggers that print to
// a log file, with rotation handled by lumberjack. In case of empty file path,
// logs keep going to stdout.
func InitLogFile(newLogConfig cfg.LoggingConfig) error {
	var f *os.File
	var fileWriter *lumberjack.Logger
	var err error
	if newLogConfig.FilePath != "" {
		filename := string(newLogConfig.FilePath)
		// Open the file once so that permission problems surface here rather
		// than on the first write.
		f, err = os.OpenFile(
			filename,
			os.O_WRONLY|os.O_CREATE|os.O_APPEND,
			0644,
		)
		if err != nil {
			return err
		}
		fileWriter = &lumberjack.Logger{
			Filename:   f.Name(),
			MaxSize:    int(newLogConfig.LogRotate.MaxFileSizeMb),
			MaxBackups: int(newLogConfig.LogRotate.BackupFileCount),
			Compress:   newLogConfig.LogRotate.Compress,
		}
	}

	defaultLoggerFactory = &loggerFactory{
		file:            f,
		fileWriter:      fileWriter,
		format:          newLogConfig.Format,
		level:           string(newLogConfig.Severity),
		logRotateConfig: newLogConfig.LogRotate,
	}
	defaultLogger = defaultLoggerFactory.newLogger(string(newLogConfig.Severity))

	return nil
}

// init initializes the logger factory to use stdout.
func init() {
	defaultLoggerFactory = &loggerFactory{
		file:  nil,
		level: cfg.INFO, // setting log level to INFO by default
		logRotateConfig: cfg.LogRotateLoggingConfig{
			BackupFileCount: 10,
			Compress:        true,
			MaxFileSizeMb:   512,
		},
	}
	defaultLogger = defaultLoggerFactory.newLogger(cfg.INFO)
}

// SetLogFormat updates the format of the default logger. Any value other
// than "text" yields JSON logs.
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	defaultLogger = defaultLoggerFactory.newLogger(defaultLoggerFactory.level)
}

// Close closes the log file when necessary. Later logs go to stdout.
func Close() {
	if defaultLoggerFactory.fileWriter == nil && defaultLoggerFactory.file == nil {
		return
	}
	if w := defaultLoggerFactory.fileWriter; w != nil {
		w.Close()
		defaultLoggerFactory.fileWriter = nil
	}
	if f := defaultLoggerFactory.file; f != nil {
		f.Close()
		defaultLoggerFactory.file = nil
	}
	defaultLogger = defaultLoggerFactory.newLogger(defaultLoggerFactory.level)
}

// Tracef prints the message with TRACE severity in the specified format.
func Tracef(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

// Debugf prints the message with DEBUG severity in the specified format.
func Debugf(format string, v ...interface{}) {
	defaultLogger.Debug(fmt.Sprintf(format, v...))
}

// Infof prints the message with INFO severity in the specified format.
func Infof(format string, v ...interface{}) {
	defaultLogger.Info(fmt.Sprintf(format, v...))
}

// Info prints the message with info severity.
func Info(message string, args ...any) {
	defaultLogger.Info(message, args...)
}

// Warnf prints the message with WARNING severity in the specified format.
func Warnf(format string, v ...interface{}) {
	defaultLogger.Warn(fmt.Sprintf(format, v...))
}

// Errorf prints the message with ERROR severity in the specified format.
func Errorf(format string, v ...interface{}) {
	defaultLogger.Error(fmt.Sprintf(format, v...))
}

// Fatal prints an error log and exits with non-zero exit code.
func Fatal(format string, v ...interface{}) {
	Errorf(format, v...)
	Close()
	os.Exit(1)
}

// NewLegacyLogger returns a *log.Logger writing through the default handler
// at the given level. It exists for libraries such as promhttp that only
// accept the standard library logger.
func NewLegacyLogger(level slog.Level, prefix string) *log.Logger {
	var programLevel = new(slog.LevelVar)
	setLoggingLevel(defaultLoggerFactory.level, programLevel)
	handler := defaultLoggerFactory.createJsonOrTextHandler(defaultLoggerFactory.writer(), programLevel, prefix)
	return slog.NewLogLogger(handler, level)
}

type loggerFactory struct {
	// If nil, log to stdout. Otherwise, log to this file.
	file            *os.File
	fileWriter      *lumberjack.Logger
	format          string
	level           string
	logRotateConfig cfg.LogRotateLoggingConfig
}

func (f *loggerFactory) writer() io.Writer {
	if f.fileWriter != nil {
		return f.fileWriter
	}
	return os.Stdout
}

func (f *loggerFactory) newLogger(level string) *slog.Logger {
	// create a new logger
	var programLevel = new(slog.LevelVar)
	logger := slog.New(f.createJsonOrTextHandler(f.writer(), programLevel, ""))
	setLoggingLevel(level, programLevel)
	return logger
}

func (f *loggerFactory) createJsonOrTextHandler(writer io.Writer, levelVar *slog.LevelVar, prefix string) slog.Handler {
	if f.format == cfg.TextLogFormat {
		return slog.NewTextHandler(writer, getHandlerOptions(levelVar, prefix, f.format))
	}
	return slog.NewJSONHandler(writer, getHandlerOptions(levelVar, prefix, f.format))
}
