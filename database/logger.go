/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/grantor/utils"
)

var (
	globalLogger   Logger
	globalLoggerMu sync.RWMutex
)

// Logger is the key/value logging contract shared by every package in grantor.
// fields alternate key, value.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// InitLogger installs log as the process-wide default if none is set yet.
func InitLogger(log Logger) {
	if log == nil {
		return
	}
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	if globalLogger == nil {
		globalLogger = log
	}
}

// GetLogger returns the process-wide logger, creating the "DATABASE" one lazily.
func GetLogger() Logger {
	globalLoggerMu.RLock()
	l := globalLogger
	globalLoggerMu.RUnlock()
	if l != nil {
		return l
	}

	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewLogger("DATABASE")
	}
	return globalLogger
}

// NewLogger returns a Logger backed by the named utils logger.
func NewLogger(name string) Logger {
	return &DefaultLogger{logger: utils.NewLogger(name)}
}

type DefaultLogger struct {
	logger *utils.Logger
}

func (l *DefaultLogger) Debug(msg string, fields ...interface{}) {
	l.entry(fields...).Debug(msg)
}

func (l *DefaultLogger) Info(msg string, fields ...interface{}) {
	l.entry(fields...).Info(msg)
}

func (l *DefaultLogger) Warn(msg string, fields ...interface{}) {
	l.entry(fields...).Warn(msg)
}

func (l *DefaultLogger) Error(msg string, fields ...interface{}) {
	l.entry(fields...).Error(msg)
}

func (l *DefaultLogger) entry(fields ...interface{}) *logrus.Entry {
	return l.logger.WithFields(toFields(fields...))
}

func toFields(fields ...interface{}) logrus.Fields {
	out := make(logrus.Fields, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		out[fmt.Sprint(fields[i])] = fields[i+1]
	}
	if len(fields)%2 == 1 {
		out["_extra"] = fields[len(fields)-1]
	}
	return out
}

type nopLogger struct{}

// NopLogger discards everything.
func NopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{}) {}
func (nopLogger) Error(string, ...interface{}) {}
