package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarning
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

// ParseLogLevel converts a flag value to a LogLevel, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "error":
		return LogLevelError
	case "warning":
		return LogLevelWarning
	case "debug":
		return LogLevelDebug
	case "trace":
		return LogLevelTrace
	default:
		return LogLevelInfo
	}
}

// Logger writes leveled, component-tagged diagnostics to the console and,
// at debug level and below, to a per-run log file. It satisfies the
// logger interface of the flirt package.
type Logger struct {
	debugLog      *os.File
	consoleLevel  LogLevel
	fileLevel     LogLevel
	showTimestamp bool
	lock          sync.Mutex
}

func NewLogger(logDir string, consoleLevel, fileLevel LogLevel, showTimestamp bool) (*Logger, error) {
	logger := &Logger{
		consoleLevel:  consoleLevel,
		fileLevel:     fileLevel,
		showTimestamp: showTimestamp,
	}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %v", err)
		}

		var err error
		logger.debugLog, err = os.OpenFile(
			filepath.Join(logDir, "sigview.log"),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY,
			0644,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open debug log: %v", err)
		}
	}

	return logger, nil
}

func (l *Logger) Close() {
	if l.debugLog != nil {
		l.debugLog.Close()
	}
}

func (l *Logger) Error(component string, format string, args ...interface{}) {
	l.log(LogLevelError, component, format, args...)
}

func (l *Logger) Warning(component string, format string, args ...interface{}) {
	l.log(LogLevelWarning, component, format, args...)
}

func (l *Logger) Info(component string, format string, args ...interface{}) {
	l.log(LogLevelInfo, component, format, args...)
}

func (l *Logger) Debug(component string, format string, args ...interface{}) {
	l.log(LogLevelDebug, component, format, args...)
}

func (l *Logger) Trace(component string, format string, args ...interface{}) {
	l.log(LogLevelTrace, component, format, args...)
}

func (l *Logger) log(level LogLevel, component string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)

	l.lock.Lock()
	defer l.lock.Unlock()

	levelStr := [...]string{"ERROR", "WARNING", "INFO", "DEBUG", "TRACE"}[level]

	if level <= l.consoleLevel {
		prefix := ""
		if l.showTimestamp {
			prefix = time.Now().Format("2006-01-02 15:04:05.000") + " "
		}
		fmt.Printf("%s[%s][%s] %s\n", prefix, levelStr, component, message)
	}

	if l.debugLog != nil && level <= l.fileLevel {
		fmt.Fprintf(l.debugLog, "%s|%s|%s|%s\n",
			time.Now().Format(time.RFC3339Nano),
			levelStr,
			component,
			message)
	}
}
