package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func levelToString(level LogLevel) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

var (
	sinkInstance *fileLogger
	sinkOnce     sync.Once
)

// fileLogger writes structured lines to hermes-debug.log and mirrors them to
// stdout so service wrappers can redirect output.
type fileLogger struct {
	file      *os.File
	logger    *log.Logger
	level     LogLevel
	mu        *sync.Mutex
	component string
	console   io.Writer
}

func sharedSink() *fileLogger {
	sinkOnce.Do(func() {
		sinkInstance = newFileLogger(DEBUG)
	})
	return sinkInstance
}

func newFileLogger(level LogLevel) *fileLogger {
	l := &fileLogger{level: level, mu: &sync.Mutex{}, console: os.Stdout}

	dir := os.Getenv("HERMES_LOG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return l
		}
		dir = home
	}

	logPath := filepath.Join(dir, "hermes-debug.log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("failed to open log file %s: %v", logPath, err)
		return l
	}

	l.file = file
	l.logger = log.New(file, "", 0) // format ourselves
	return l
}

// NewComponentLogger returns the shared file sink scoped to a component name.
func NewComponentLogger(component string) Logger {
	sink := sharedSink()
	return &fileLogger{
		file:      sink.file,
		logger:    sink.logger,
		level:     sink.level,
		mu:        sink.mu,
		component: component,
		console:   sink.console,
	}
}

// SetLevel sets the minimum level of the shared sink.
func SetLevel(level LogLevel) {
	sink := sharedSink()
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.level = level
}

// Close flushes and closes the shared log file.
func Close() error {
	sink := sharedSink()
	if sink.file != nil {
		return sink.file.Close()
	}
	return nil
}

func (l *fileLogger) log(level LogLevel, format string, args ...any) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, file, line, ok := runtime.Caller(3)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	// Format: 2025-09-30 12:34:56 [INFO] [Pipeline] file.go:123 - Message
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	component := l.component
	if component == "" {
		component = "HERMES"
	}

	message := fmt.Sprintf(format, args...)
	logLine := fmt.Sprintf("%s [%s] [%s] %s:%d - %s\n",
		timestamp, levelToString(level), component, file, line, message)

	sanitized := Redact(logLine)

	if l.logger != nil {
		l.logger.Print(sanitized)
	}
	if l.console != nil {
		fmt.Fprint(l.console, sanitized)
	}
}

func (l *fileLogger) Debug(format string, args ...any) { l.log(DEBUG, format, args...) }
func (l *fileLogger) Info(format string, args ...any)  { l.log(INFO, format, args...) }
func (l *fileLogger) Warn(format string, args ...any)  { l.log(WARN, format, args...) }
func (l *fileLogger) Error(format string, args ...any) { l.log(ERROR, format, args...) }
