// Copyright 2025 Google LLC
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

// Package logger is a small leveled logger wrapping a rotating file (or
// stderr) writer, configured from cfg.LoggingConfig at mount/mkfs time.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fluxfs/fluxdir/cfg"
)

// loggerFactory owns the destination writer and current severity threshold.
// A package-level instance is swapped in by SetLogger; the default instance
// logs at INFO to stderr.
type loggerFactory struct {
	mu sync.Mutex

	file      *lumberjack.Logger
	sysWriter io.Writer
	format    string
	level     cfg.LogSeverity

	traceL   *log.Logger
	debugL   *log.Logger
	infoL    *log.Logger
	warningL *log.Logger
	errorL   *log.Logger
}

var defaultLoggerFactory = newStderrFactory(cfg.InfoLogSeverity, "text")

func newStderrFactory(level cfg.LogSeverity, format string) *loggerFactory {
	f := &loggerFactory{sysWriter: os.Stderr, format: format, level: level}
	f.rebuild()
	return f
}

// SetLogger reconfigures the package-level logger from lc, rotating through
// lumberjack.Logger when a file path is set (max-file-size-mb,
// backup-file-count, compress).
func SetLogger(lc cfg.LoggingConfig) error {
	f := &loggerFactory{format: lc.Format, level: lc.Severity}
	if lc.FilePath != "" {
		f.file = &lumberjack.Logger{
			Filename:   string(lc.FilePath),
			MaxSize:    lc.LogRotate.MaxFileSizeMb,
			MaxBackups: lc.LogRotate.BackupFileCount,
			Compress:   lc.LogRotate.Compress,
		}
	} else {
		f.sysWriter = os.Stderr
	}
	f.rebuild()

	defaultLoggerFactory.mu.Lock()
	defer defaultLoggerFactory.mu.Unlock()
	defaultLoggerFactory = f
	return nil
}

func (f *loggerFactory) writer() io.Writer {
	if f.file != nil {
		return f.file
	}
	return f.sysWriter
}

func (f *loggerFactory) rebuild() {
	w := f.writer()
	prefix := func(tag string) string {
		if f.format == "json" {
			return ""
		}
		return tag + " "
	}
	flags := log.LstdFlags | log.Lmicroseconds
	f.traceL = log.New(w, prefix("[TRACE]"), flags)
	f.debugL = log.New(w, prefix("[DEBUG]"), flags)
	f.infoL = log.New(w, prefix("[INFO]"), flags)
	f.warningL = log.New(w, prefix("[WARNING]"), flags)
	f.errorL = log.New(w, prefix("[ERROR]"), flags)
}

func (f *loggerFactory) enabled(sev cfg.LogSeverity) bool {
	return f.level.Rank() <= sev.Rank() && f.level != cfg.OffLogSeverity
}

func current() *loggerFactory {
	defaultLoggerFactory.mu.Lock()
	defer defaultLoggerFactory.mu.Unlock()
	return defaultLoggerFactory
}

func logf(l *log.Logger, format string, v []interface{}) {
	l.Output(3, fmt.Sprintf(format, v...))
}

// Tracef logs at TRACE, the most verbose level. Nothing in this module
// calls it; BAD_DX_DIR fallbacks log through Warnf.
func Tracef(format string, v ...interface{}) {
	f := current()
	if f.enabled(cfg.TraceLogSeverity) {
		logf(f.traceL, format, v)
	}
}

func Debugf(format string, v ...interface{}) {
	f := current()
	if f.enabled(cfg.DebugLogSeverity) {
		logf(f.debugL, format, v)
	}
}

func Infof(format string, v ...interface{}) {
	f := current()
	if f.enabled(cfg.InfoLogSeverity) {
		logf(f.infoL, format, v)
	}
}

func Warnf(format string, v ...interface{}) {
	f := current()
	if f.enabled(cfg.WarningLogSeverity) {
		logf(f.warningL, format, v)
	}
}

func Errorf(format string, v ...interface{}) {
	f := current()
	if f.enabled(cfg.ErrorLogSeverity) {
		logf(f.errorL, format, v)
	}
}
