// Package log provides a global logger with configurable logging level. The intended use is for
// development builds and the bundled command-line tools.

package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs anomalies that are not expected to occur during normal use.
	LevelWarning              // Logs anomalies that are expected to occur occasionally during normal use.
	LevelInfo                 // Logs major events.
	LevelDebug                // Logs detailed IO, including HTTP exchanges with the vendor backend.
)

var (
	logMutex       sync.Mutex
	globalLogLevel Level
	output         io.Writer = os.Stderr
)

var labels = map[Level]string{
	LevelDebug:   "[debug]",
	LevelInfo:    "[info ]",
	LevelWarning: "[warn ]",
	LevelError:   "[error]",
}

func SetLevel(level Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	globalLogLevel = level
}

// SetOutput redirects log lines to w. The default is stderr.
func SetOutput(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	output = w
}

// ParseLevel translates a level name ("debug", "info", "warning", "error",
// "none") into a Level, for use with command-line flags.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(name) {
	case "none", "":
		return LevelNone, nil
	case "error":
		return LevelError, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	}
	return LevelNone, fmt.Errorf("unrecognized log level '%s'", name)
}

func logf(level Level, format string, a ...interface{}) {
	logMutex.Lock()
	defer logMutex.Unlock()
	if level > globalLogLevel {
		return
	}
	msg := fmt.Sprintf("%s %s ", time.Now().Format(time.RFC3339), labels[level])
	msg += fmt.Sprintf(format, a...)
	fmt.Fprintln(output, msg)
}

func Debug(format string, a ...interface{}) {
	logf(LevelDebug, format, a...)
}
func Info(format string, a ...interface{}) {
	logf(LevelInfo, format, a...)
}
func Warning(format string, a ...interface{}) {
	logf(LevelWarning, format, a...)
}
func Error(format string, a ...interface{}) {
	logf(LevelError, format, a...)
}
