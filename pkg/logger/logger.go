// Package logger provides the leveled, optionally colorized logger used
// across waveprint. The default instance reads its level from the
// WAVEPRINT_LOG_LEVEL environment variable.
package logger

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
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

func (l Level) color() string {
	switch l {
	case LevelDebug:
		return colorGray
	case LevelInfo:
		return colorBlue
	case LevelWarn:
		return colorYellow
	case LevelError:
		return colorRed
	}
	return colorReset
}

type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	level    Level
	colorize bool
}

func New(out io.Writer, level Level, colorize bool) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{out: out, level: level, colorize: colorize}
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the process-wide logger, created on first use.
func Default() *Logger {
	once.Do(func() {
		level := LevelInfo
		switch strings.ToUpper(os.Getenv("WAVEPRINT_LOG_LEVEL")) {
		case "DEBUG":
			level = LevelDebug
		case "WARN":
			level = LevelWarn
		case "ERROR":
			level = LevelError
		}
		defaultLogger = New(os.Stdout, level, true)
	})
	return defaultLogger
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) SetOutput(out io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = out
}

func (l *Logger) logf(level Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	tag := fmt.Sprintf("[%s]", level)
	if l.colorize {
		tag = level.color() + tag + colorReset
	}
	fmt.Fprintf(l.out, "%s %s %s\n",
		time.Now().Format("2006-01-02 15:04:05"),
		tag,
		fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }
