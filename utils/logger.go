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

package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

type Logger = logrus.Logger

const defaultTimestampFormat = "2006-01-02 15:04:05.000"

var (
	loggerRegistryMu sync.RWMutex
	loggerRegistry   = map[string]*logrus.Logger{}

	settingsMu     sync.RWMutex
	consoleLevel   = ParseLogLevel(EnvDefaultString("GRANTOR_LOG_LEVEL", "info"))
	consoleFormat  = normalizeFormat(EnvDefaultString("GRANTOR_LOG_FORMAT", "text"))
	consoleOutput  io.Writer = os.Stderr
	fileLogEnabled = EnvDefaultBool("GRANTOR_FILE_LOG_ENABLED", false)
	fileLogDir     = EnvDefaultString("GRANTOR_FILE_LOG_DIR", "logs")
)

func normalizeFormat(format string) string {
	if strings.ToLower(strings.TrimSpace(format)) == "json" {
		return "json"
	}
	return "text"
}

// ParseLogLevel maps a level name to logrus, falling back to info.
func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// ConfigureLogLevel sets the level on every registered logger and on
// loggers created afterwards.
func ConfigureLogLevel(level string) {
	lvl := ParseLogLevel(level)
	settingsMu.Lock()
	consoleLevel = lvl
	settingsMu.Unlock()

	loggerRegistryMu.RLock()
	defer loggerRegistryMu.RUnlock()
	for _, lg := range loggerRegistry {
		lg.SetLevel(lvl)
	}
}

// ConfigureLogFormat switches between "text" and "json" output.
func ConfigureLogFormat(format string) {
	f := normalizeFormat(format)
	settingsMu.Lock()
	consoleFormat = f
	settingsMu.Unlock()

	loggerRegistryMu.RLock()
	defer loggerRegistryMu.RUnlock()
	for name, lg := range loggerRegistry {
		lg.SetFormatter(newFormatter(name, f, true))
	}
}

// ConfigureOutput redirects console output of all loggers.
func ConfigureOutput(w io.Writer) {
	settingsMu.Lock()
	consoleOutput = w
	settingsMu.Unlock()

	loggerRegistryMu.RLock()
	defer loggerRegistryMu.RUnlock()
	for _, lg := range loggerRegistry {
		lg.SetOutput(w)
	}
}

// ConfigureFileLog enables daily files under dir for loggers created afterwards.
func ConfigureFileLog(dir string, enabled bool) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	if dir != "" {
		fileLogDir = dir
	}
	fileLogEnabled = enabled
}

// SetLoggerLevel changes the level of one named logger.
func SetLoggerLevel(name string, level string) bool {
	loggerRegistryMu.RLock()
	lg, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	lg.SetLevel(ParseLogLevel(level))
	return true
}

// LoggerNames lists registered loggers in name order.
func LoggerNames() []string {
	loggerRegistryMu.RLock()
	defer loggerRegistryMu.RUnlock()
	names := make([]string, 0, len(loggerRegistry))
	for name := range loggerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewLogger returns the logger registered under name, creating it on first use.
func NewLogger(name string) *logrus.Logger {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	if lg, ok := loggerRegistry[name]; ok {
		return lg
	}

	settingsMu.RLock()
	lvl, format, out := consoleLevel, consoleFormat, consoleOutput
	fileEnabled, dir := fileLogEnabled, fileLogDir
	settingsMu.RUnlock()

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	l.SetReportCaller(true)
	l.SetFormatter(newFormatter(name, format, true))
	if fileEnabled {
		if err := AddDailyFileHook(l, name, dir); err != nil {
			l.WithError(err).Warn("file logging disabled")
		}
	}
	loggerRegistry[name] = l
	return l
}

func newFormatter(name, format string, useColor bool) logrus.Formatter {
	if format == "json" {
		return &JSONLogFormatter{LoggerName: name}
	}
	return &Log4jColorFormatter{LoggerName: name, NameWidth: 10, Color: useColor}
}

type fileHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}

// AddDailyFileHook mirrors every entry of l as JSON into dir/<name>-<date>.log.
func AddDailyFileHook(l *logrus.Logger, name, dir string) error {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	l.AddHook(&fileHook{
		writer:    &dailyFileWriter{dir: dir, name: name},
		formatter: &JSONLogFormatter{LoggerName: name},
	})
	return nil
}

type dailyFileWriter struct {
	dir  string
	name string

	mu      sync.Mutex
	curDate string
	file    *os.File
}

func (w *dailyFileWriter) Write(p []byte) (int, error) {
	date := time.Now().Format("2006-01-02")
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil || w.curDate != date {
		if w.file != nil {
			_ = w.file.Close()
		}
		path := filepath.Join(w.dir, fmt.Sprintf("%s-%s.log", w.name, date))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, err
		}
		w.file = f
		w.curDate = date
	}
	return w.file.Write(p)
}

// Log4jColorFormatter renders "ts LEVEL pid --- name caller : msg k=v".
type Log4jColorFormatter struct {
	LoggerName      string
	TimestampFormat string
	NameWidth       int
	Color           bool
}

func (f *Log4jColorFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = defaultTimestampFormat
	}
	paint := func(attr color.Attribute, s string) string {
		if !f.Color {
			return s
		}
		return color.New(attr).Sprint(s)
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format(tsFormat))
	b.WriteByte(' ')
	b.WriteString(paint(levelColor(entry.Level), fmt.Sprintf("%5s", strings.ToUpper(entry.Level.String()))))
	b.WriteByte(' ')
	b.WriteString(paint(color.FgMagenta, fmt.Sprintf("%-6d", os.Getpid())))
	b.WriteString(" --- ")
	b.WriteString(paint(color.FgCyan, padLeft(limitRunes(f.LoggerName, f.NameWidth), f.NameWidth)))
	if entry.Caller != nil {
		b.WriteString(paint(color.Faint, fmt.Sprintf(" %s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)))
	}
	b.WriteString(" : ")
	b.WriteString(entry.Message)
	for _, k := range sortedKeys(entry.Data) {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// JSONLogFormatter renders one object per line with RFC3339 timestamps.
type JSONLogFormatter struct {
	LoggerName string
}

func (f *JSONLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	out := make(map[string]interface{}, len(entry.Data)+5)
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out[k] = v
	}
	out["timestamp"] = entry.Time.Format(time.RFC3339Nano)
	out["level"] = entry.Level.String()
	out["logger"] = f.LoggerName
	out["event"] = entry.Message
	if entry.Caller != nil {
		out["caller"] = fmt.Sprintf("%s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func levelColor(level logrus.Level) color.Attribute {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return color.FgBlue
	case logrus.InfoLevel:
		return color.FgGreen
	case logrus.WarnLevel:
		return color.FgYellow
	default:
		return color.FgRed
	}
}

func sortedKeys(data logrus.Fields) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func padLeft(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return strings.Repeat(" ", width-n) + s
}

func limitRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}

func EnvDefaultString(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	}
	return def
}
