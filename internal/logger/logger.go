// Package logger provides leveled logging for all dhttpd components.
//
// The logger is configured once at startup (level, format, output) and used
// through package-level functions so callers don't thread a logger value
// through every constructor.
package logger

import (
	"encoding/json"
	"fmt"
	stdlog "log"
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

const (
	// FormatText emits "[timestamp] [LEVEL] message" lines.
	FormatText = "text"

	// FormatJSON emits one JSON object per line with ts/level/msg fields.
	FormatJSON = "json"
)

var (
	mu           sync.Mutex
	currentLevel = LevelInfo
	format       = FormatText
	logger       = stdlog.New(os.Stdout, "", 0)
	output       *os.File
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
	default:
		return "UNKNOWN"
	}
}

// SetLevel sets the minimum level that will be emitted.
// Unrecognized values leave the current level unchanged.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
}

// Configure applies a full logging configuration: level, output format
// ("text" or "json") and destination ("stdout", "stderr" or a file path).
//
// Returns an error only if a log file cannot be opened; level and format
// fall back silently to their defaults on unrecognized values.
func Configure(level, logFormat, out string) error {
	SetLevel(level)

	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(logFormat) {
	case FormatJSON:
		format = FormatJSON
	default:
		format = FormatText
	}

	// Close a previously opened log file before switching destinations
	if output != nil {
		_ = output.Close()
		output = nil
	}

	switch out {
	case "", "stdout":
		logger = stdlog.New(os.Stdout, "", 0)
	case "stderr":
		logger = stdlog.New(os.Stderr, "", 0)
	default:
		f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", out, err)
		}
		output = f
		logger = stdlog.New(f, "", 0)
	}

	return nil
}

func log(level Level, msgFormat string, v ...any) {
	mu.Lock()
	defer mu.Unlock()

	if level < currentLevel {
		return
	}

	message := fmt.Sprintf(msgFormat, v...)

	if format == FormatJSON {
		line, err := json.Marshal(map[string]string{
			"ts":    time.Now().Format(time.RFC3339),
			"level": level.String(),
			"msg":   message,
		})
		if err == nil {
			logger.Println(string(line))
			return
		}
		// Fall through to text on marshal failure
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	prefix := fmt.Sprintf("[%s] [%s] ", timestamp, level.String())
	logger.Println(prefix + message)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
