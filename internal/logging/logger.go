// Package logging provides config-driven, categorized file-based logging for
// bman. The zap logger for CLI-facing output is built in cmd/bman, not here.
// Logs are written to <pack>/enrich/logs/ with one file per category. File
// logging is always-on (unlike the CLI logger's level, which follows
// --verbose); the log files are an audit trail that no bman command reads
// back.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category identifies which subsystem produced a log line.
type Category string

const (
	CategoryRunner    Category = "runner"
	CategoryQuery     Category = "query"
	CategoryLock      Category = "lock"
	CategoryPlan      Category = "plan"
	CategoryApply     Category = "apply"
	CategoryAutoverify Category = "autoverify"
	CategoryRules     Category = "rules"
	CategoryLedger    Category = "ledger"
	CategoryNextAction Category = "next_action"
	CategoryStatus    Category = "status"
	CategoryTxn       Category = "txn"
	CategoryBinaryLens Category = "binary_lens"
	CategoryManRender Category = "man_render"
	CategoryLM        Category = "lm_author"
)

// Entry is a single structured log line, written as one JSON object per line
// so the file can double as machine-readable evidence during debugging.
type Entry struct {
	Timestamp int64                  `json:"ts"`
	Category  Category               `json:"cat"`
	Level     string                 `json:"lvl"`
	Message   string                 `json:"msg"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger writes category-scoped entries to a single append-only file.
type Logger struct {
	category Category
	mu       sync.Mutex
	file     *os.File
	enc      *json.Encoder
}

var (
	mu      sync.Mutex
	loggers = make(map[Category]*Logger)
	logsDir string
	stdlog  = log.New(os.Stderr, "", 0)
)

// Initialize points the package at <packRoot>/enrich/logs and creates it.
// Safe to call multiple times; later calls with a different root reopen all
// loggers lazily on next use.
func Initialize(packRoot string) error {
	mu.Lock()
	defer mu.Unlock()

	dir := filepath.Join(packRoot, "enrich", "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logging: create log dir: %w", err)
	}
	if dir != logsDir {
		// CloseAll takes mu itself, so close the loggers inline here.
		for cat, l := range loggers {
			if l.file != nil {
				_ = l.file.Close()
			}
			delete(loggers, cat)
		}
	}
	logsDir = dir
	return nil
}

// CloseAll flushes and closes every open category log file.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for cat, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
		delete(loggers, cat)
	}
}

// For returns (creating if necessary) the logger for a category.
func For(category Category) *Logger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{category: category}
	if logsDir != "" {
		path := filepath.Join(logsDir, string(category)+".jsonl")
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			l.file = f
			l.enc = json.NewEncoder(f)
		} else {
			stdlog.Printf("logging: failed to open %s: %v", path, err)
		}
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.enc != nil {
		_ = l.enc.Encode(Entry{
			Timestamp: time.Now().UnixMilli(),
			Category:  l.category,
			Level:     level,
			Message:   msg,
			Fields:    fields,
		})
	}
}

// Info logs an informational line with optional structured fields.
func (l *Logger) Info(msg string, fields map[string]interface{}) { l.write("info", msg, fields) }

// Warn logs a warning line.
func (l *Logger) Warn(msg string, fields map[string]interface{}) { l.write("warn", msg, fields) }

// Error logs an error line.
func (l *Logger) Error(msg string, fields map[string]interface{}) { l.write("error", msg, fields) }

// Debug logs a debug line.
func (l *Logger) Debug(msg string, fields map[string]interface{}) { l.write("debug", msg, fields) }
